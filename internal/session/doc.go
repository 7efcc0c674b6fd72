// Package session runs conversation turns for a single connection.
//
// A Session owns one conversation.Store. Each call to Handle is one turn:
//
//  1. The log is trimmed back to its recent window if it grew past the cap.
//  2. A leading directive (launch_program, run_code_in_virtual_env,
//     scrape_website or a program update) is dispatched, and its
//     observation takes the place of the user's text in the log.
//  3. The model is asked for a reply over the system prompt and the log.
//  4. The reply is appended and returned, prefixed by the directive report
//     when there was one.
//
// Chat memory and overall memory are written after the reply in a
// background goroutine that is joined before the next turn and on Close.
// A completion failure removes the turn's pending message and returns an
// error wrapping provider.ErrCompletionFailed; the session stays usable.
//
// Directives the model mentions in its reply are published as
// event.DirectiveSuggested but never executed.
//
// Service creates sessions from shared collaborators and keeps the set of
// active sessions for status reporting.
package session
