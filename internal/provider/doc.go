// Package provider adapts hosted chat models to the session engine.
//
// A Completer turns a system prompt and the conversation log into a single
// assistant reply. EinoCompleter implements it over any Eino
// model.BaseChatModel, retrying transient API errors with exponential
// backoff and wrapping every failure in ErrCompletionFailed.
//
// Backends are selected with a "provider/model" string:
//
//	anthropic/claude-3-5-sonnet-20240620
//	openai/gpt-4o
//	ark/<endpoint-id>
//
// A bare model ID is treated as an Anthropic model. API keys come from the
// provider section of the configuration or from ANTHROPIC_API_KEY,
// OPENAI_API_KEY and ARK_API_KEY.
//
//	completer, err := provider.New(ctx, cfg)
//	reply, err := completer.Complete(ctx, systemPrompt, messages)
package provider
