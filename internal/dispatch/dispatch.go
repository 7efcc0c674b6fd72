// Package dispatch routes recognized directives to the capability that
// satisfies them and turns the outcome into an observation for the model.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localgpt/localgpt/internal/directive"
	"github.com/localgpt/localgpt/internal/logging"
)

// Launcher starts local programs.
type Launcher interface {
	LaunchProgram(ctx context.Context, program, arguments string) error
}

// Executor runs sandbox and scrape commands. It reports failures in the
// returned text.
type Executor interface {
	Execute(ctx context.Context, command string) string
}

// Outcome is the normalized result of a dispatch.
type Outcome struct {
	// Observation is appended to the conversation in place of the user's
	// directive text.
	Observation string
	// Report is what the user sees ahead of the model's reply.
	Report string
	// Framed selects the "Command executed" presentation used for
	// executor commands.
	Framed  bool
	IsError bool
}

// Render combines the report with the model's reply.
func (o Outcome) Render(reply string) string {
	if o.Framed {
		return o.Report + "\n\nAssistant response:\n" + reply
	}
	return o.Report + "\n" + reply
}

// Dispatcher maps directive kinds to capabilities.
type Dispatcher struct {
	launcher      Launcher
	executor      Executor
	launchTimeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLaunchTimeout bounds how long a launch may take to start.
func WithLaunchTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.launchTimeout = d }
}

// New creates a dispatcher.
func New(launcher Launcher, executor Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{launcher: launcher, executor: executor}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch performs the directive. It never fails; capability errors and
// panics become error observations.
func (d *Dispatcher) Dispatch(ctx context.Context, dir directive.Directive) Outcome {
	logging.Info().
		Str("kind", string(dir.Kind)).
		Str("args", logging.Preview(dir.Raw, 60)).
		Msg("dispatching directive")

	var out Outcome
	switch dir.Kind {
	case directive.KindLaunchProgram:
		out = d.launch(ctx, dir.Program(), dir.Arguments())
	case directive.KindProgramUpdate:
		out = observe(fmt.Sprintf("Program update received: %s", dir.Command()))
	case directive.KindRunSandboxedCode, directive.KindScrapeWebsite:
		out = d.execute(ctx, dir.Command())
	default:
		out = observe(fmt.Sprintf("Unsupported directive: %s", dir.Kind))
		out.IsError = true
	}

	if out.IsError {
		logging.Warn().Str("kind", string(dir.Kind)).Str("observation", out.Observation).Msg("directive failed")
	}
	return out
}

func observe(text string) Outcome {
	return Outcome{Observation: text, Report: text}
}

// launch runs the launch on its own goroutine so a slow start is bounded by
// ctx and the launch timeout rather than blocking the session.
func (d *Dispatcher) launch(ctx context.Context, program, arguments string) Outcome {
	if d.launchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.launchTimeout)
		defer cancel()
	}

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("launcher panic: %v", r)
			}
		}()
		result <- d.launcher.LaunchProgram(ctx, program, arguments)
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %v", d.launchTimeout)
		}
	}

	if err != nil {
		out := observe(fmt.Sprintf("Failed to launch program: %s. Error: %v", program, err))
		out.IsError = true
		return out
	}
	if arguments != "" {
		return observe(fmt.Sprintf("Launched program: %s with arguments: %s", program, arguments))
	}
	return observe(fmt.Sprintf("Launched program: %s", program))
}

func (d *Dispatcher) execute(ctx context.Context, command string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = framed(fmt.Sprintf("Error: %v", r))
			out.IsError = true
		}
	}()
	return framed(d.executor.Execute(ctx, command))
}

func framed(result string) Outcome {
	return Outcome{
		Observation: "Python command result: " + result,
		Report:      "Command executed. Result:\n" + result,
		Framed:      true,
	}
}
