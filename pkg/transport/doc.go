// Package transport provides the INDI client connection.
//
// INDI runs over a plain TCP stream (default port 7624) carrying a sequence
// of top-level XML elements without an enclosing root element:
//
//	┌────────────────────────────────┐
//	│   INDI XML elements (1.7)      │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Connection State
//
// A Conn moves through an explicit state machine guarded by one mutex and
// a condition variable:
//
//	Disconnected ──Connect──▶ Connecting ──listener up──▶ Connected
//	     ▲                                                   │
//	     └──────────────── Disconnecting ◀──Disconnect/EOF───┘
//
// Every transition broadcasts on the condition variable, so blocked callers
// (Connect waiting for a previous session to finish, Disconnect waiting for
// a concurrent close) wake without polling.
//
// # Stream Listener
//
// Each Connected session runs exactly one listener goroutine. It calls
// Handler.OnConnected before its first read and Connect returns only after
// that. It then feeds the socket into a wire.Decoder and hands every
// complete element to the Handler, synchronously and in stream order. Closing the socket is the
// only way to unblock the listener; exactly one of Disconnect and the
// listener's own end-of-stream path performs the close, and
// Handler.OnDisconnected fires exactly once per session.
//
// # Exit Codes
//
//	ExitNormal         0   explicit Disconnect
//	ExitPeerClosed    -1   server closed the stream
//	ExitProtocolError -2   corrupt XML, session cannot continue
//	ExitIOError       -3   read failure other than end of stream
//
// Handlers run on the listener goroutine. A Disconnect issued from a
// callback closes the socket and returns; the listener completes the
// session with that exit code when the callback returns. OnDisconnected
// runs before the state becomes Disconnected, so a concurrent Connect never
// overlaps it. Handlers must not call Connect.
package transport
