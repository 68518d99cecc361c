// Package connection keeps an INDI client connected.
//
// A Manager owns the connect and disconnect calls for one client and
// re-establishes the session when it ends unexpectedly.
//
// # Reconnection Strategy
//
// Only sessions that end with transport.ExitPeerClosed or
// transport.ExitIOError are re-established. A Disconnect through the
// Manager, a protocol error or a caller-supplied exit code leave the
// client disconnected.
//
// Attempts are spaced with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until successful
//  5. Reset to 1s on successful reconnection
//
// # Jitter
//
// Several clients watching the same server should not reconnect in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Wiring
//
// The client reports session ends through its Mediator. WatchExits wraps
// the application's mediator so those reports reach the Manager:
//
//	var c *client.Client
//	m := connection.NewManager(
//		func(ctx context.Context) error { return c.Connect(ctx) },
//		func(code int) error { return c.Disconnect(code) },
//	)
//	c, _ = client.New(config, connection.WatchExits(app, m))
//	m.StartReconnectLoop()
package connection
