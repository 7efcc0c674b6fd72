/*
Package event provides the pub/sub event bus for the LocalGPT session engine.

Components publish lifecycle events without knowing who consumes them: the
session server logs them, the admin endpoint streams them, and tests assert
on them.

# Event Types

Session Events:
  - session.created: a connection opened a session
  - session.closed: the connection ended and the session was torn down

Turn Events:
  - turn.completed: a turn appended its two messages and produced a reply
  - turn.failed: the completion failed and the turn was rolled back

Directive Events:
  - directive.dispatched: a user directive was routed to a capability
  - directive.suggested: the assistant's reply contained a directive

Program Events:
  - program.launched: a launched program started
  - program.output: one line of stdout or stderr
  - program.terminated: the program exited

# Delivery

Subscribe and SubscribeAll register direct-call subscribers that receive the
typed Data. Publish calls each subscriber in its own goroutine; PublishSync
calls them in order before returning.

Every event is also encoded as JSON and published on the watermill gochannel
topic Topic. Stream subscribes to it:

	msgs, err := bus.Stream(ctx)
	for msg := range msgs {
	    fmt.Println(string(msg.Payload))
	    msg.Ack()
	}

The package-level functions operate on a process-wide bus returned by Default.
*/
package event
