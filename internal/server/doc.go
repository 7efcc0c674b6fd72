// Package server exposes sessions over TCP.
//
// Every accepted connection gets its own session and goroutine. The
// connection loop reads one message, runs it through Session.Handle and
// writes the reply, until the peer closes the connection or sends an empty
// message. Two framings are supported:
//
//   - raw: each read of up to BufferSize (4096) bytes is one message and
//     replies are written as-is
//   - length: each message is a 4-byte big-endian length followed by the
//     payload, in both directions
//
// When the model cannot be reached the fixed Apology is written instead of
// a reply and the connection stays open.
//
// With Config.Admin set, an HTTP listener serves:
//
//	GET /health               {"status":"ok","sessions":N}
//	GET /sessions             active sessions
//	GET /sessions/{sessionID} one session
//	GET /events               server-sent stream of bus events
package server
