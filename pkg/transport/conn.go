package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/indiproto/indi-go/pkg/log"
	"github.com/indiproto/indi-go/pkg/wire"
)

// DefaultPort is the IANA-registered INDI port.
const DefaultPort = 7624

// Session exit codes reported to Handler.OnDisconnected.
const (
	ExitNormal        = 0
	ExitPeerClosed    = -1
	ExitProtocolError = -2
	ExitIOError       = -3
	ExitConnectFailed = -4
)

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Conn.
type Config struct {
	// ConnectTimeout bounds the dial (default: 5s). A context deadline
	// that is earlier wins.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each Send (0 = no timeout).
	WriteTimeout time.Duration

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives raw traffic and state changes (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default connection configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
	}
}

// Handler receives stream events. All methods are called on the listener
// goroutine except OnDisconnected after an explicit Disconnect from another
// goroutine, which runs on the disconnecting goroutine.
//
// Disconnect may be called from OnConnected, OnElement and OnError; the
// listener then completes the close once the callback returns. Connect must
// not be called from any callback.
type Handler interface {
	// OnConnected is called once per session, before the first read.
	OnConnected()

	// OnElement is called for every complete top-level element, in order.
	OnElement(el *wire.Element)

	// OnError is called when the stream fails before the session ends.
	OnError(err error)

	// OnDisconnected is called exactly once per session, before the state
	// becomes Disconnected.
	OnDisconnected(exitCode int)
}

// Conn is a single INDI client connection. It can be reconnected after
// it returns to StateDisconnected.
type Conn struct {
	config  Config
	handler Handler
	logger  *slog.Logger
	plog    log.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	conn     net.Conn
	done     chan struct{}
	exitCode int
	connID   string
	address  string

	// dispatching is set while the listener runs a handler callback.
	dispatching bool
	// handoff is set when a Disconnect during dispatch left the close
	// sequence to the listener.
	handoff     bool
	handoffCode int
	// finishing is set while OnDisconnected runs.
	finishing bool

	writeMu sync.Mutex
}

// NewConn creates a disconnected Conn.
func NewConn(config Config, handler Handler) *Conn {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		config:  config,
		handler: handler,
		logger:  logger,
		plog:    log.OrNoop(config.ProtocolLogger),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// State returns the current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ExitCode returns the code recorded on the last transition into Disconnected.
func (c *Conn) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// ConnectionID returns the ID of the current or last session.
func (c *Conn) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Address returns the address of the current or last session.
func (c *Conn) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// Connect dials address and starts the stream listener. It returns once
// the handler's OnConnected has run. A Conn that is Disconnecting is waited
// for, including its OnDisconnected callback.
func (c *Conn) Connect(ctx context.Context, address string) error {
	c.mu.Lock()
	for c.state == StateDisconnecting {
		c.cond.Wait()
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.address = address
	c.connID = uuid.New().String()
	c.setStateLocked(StateConnecting, "")
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	nc, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		c.mu.Lock()
		c.exitCode = ExitConnectFailed
		c.setStateLocked(StateDisconnected, err.Error())
		c.mu.Unlock()
		c.logger.Debug("dial failed", "address", address, "error", err)
		return &ConnectionError{Address: address, Err: err}
	}

	ready := make(chan struct{})
	c.mu.Lock()
	c.conn = nc
	c.done = make(chan struct{})
	go c.listen(nc, c.done, ready)
	c.mu.Unlock()
	<-ready

	c.logger.Info("connected", "address", address, "conn_id", c.ConnectionID())
	return nil
}

// Disconnect closes the session with exitCode, waits for the listener to
// exit and notifies the handler. It is a no-op when already disconnected.
// Called while a handler callback runs, it closes the socket and returns;
// the listener finishes the session with exitCode when the callback returns.
func (c *Conn) Disconnect(exitCode int) error {
	c.shutdown(exitCode, false)
	return nil
}

// shutdown runs the close sequence. Exactly one caller per session moves
// the state from Connected to Disconnecting; everyone else waits for the
// result or, on the listener, returns immediately. A caller that closes
// during dispatch hands the rest of the sequence to the listener.
func (c *Conn) shutdown(exitCode int, fromListener bool) {
	c.mu.Lock()
	for c.state == StateConnecting {
		c.cond.Wait()
	}

	switch c.state {
	case StateDisconnected:
		c.mu.Unlock()
		return
	case StateDisconnecting:
		if fromListener {
			handoff, code := c.handoff, c.handoffCode
			c.handoff = false
			c.mu.Unlock()
			if handoff {
				c.finish(code)
			}
			return
		}
		if c.dispatching || c.finishing {
			// The session is already ending and the listener (or the
			// caller of OnDisconnected) may be the goroutine asking.
			c.mu.Unlock()
			return
		}
		done := c.done
		for c.state != StateDisconnected {
			c.cond.Wait()
		}
		c.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}

	c.setStateLocked(StateDisconnecting, "")
	nc := c.conn
	done := c.done
	deferred := !fromListener && c.dispatching
	if deferred {
		c.handoff = true
		c.handoffCode = exitCode
	}
	c.mu.Unlock()

	if err := nc.Close(); err != nil {
		c.logger.Debug("close", "error", err)
	}
	if deferred {
		return
	}
	if !fromListener {
		<-done
	}
	c.finish(exitCode)
}

// finish records exitCode, notifies the handler and only then moves to
// Disconnected, so a waiting Connect never overlaps the old session's
// OnDisconnected.
func (c *Conn) finish(exitCode int) {
	c.mu.Lock()
	c.conn = nil
	c.exitCode = exitCode
	c.finishing = true
	c.mu.Unlock()

	c.logger.Info("disconnected", "address", c.Address(), "exit_code", exitCode)
	c.handler.OnDisconnected(exitCode)

	c.mu.Lock()
	c.finishing = false
	c.setStateLocked(StateDisconnected, "")
	c.mu.Unlock()
}

// Send writes data as one unit. Concurrent Sends never interleave.
func (c *Conn) Send(data []byte) (int, error) {
	c.mu.Lock()
	nc := c.conn
	state := c.state
	connID := c.connID
	c.mu.Unlock()

	if state != StateConnected || nc == nil {
		return 0, ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		_ = nc.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer func() { _ = nc.SetWriteDeadline(time.Time{}) }()
	}

	n, err := nc.Write(data)
	c.logFrame(connID, log.DirectionOut, data[:n])
	if err != nil {
		return n, &IOError{Op: "write", Err: err}
	}
	return n, nil
}

// listen is the stream listener. It owns reads on nc for one session.
func (c *Conn) listen(nc net.Conn, done, ready chan struct{}) {
	defer close(done)

	c.mu.Lock()
	connID := c.connID
	c.setStateLocked(StateConnected, "")
	c.dispatching = true
	c.mu.Unlock()

	c.handler.OnConnected()
	c.setDispatching(false)
	close(ready)

	dec := wire.NewDecoder(&captureReader{r: nc, conn: c, connID: connID})
	for {
		el, err := dec.Next()
		if err != nil {
			c.mu.Lock()
			closing := c.state == StateDisconnecting
			c.mu.Unlock()
			if closing {
				c.shutdown(ExitNormal, true)
				return
			}

			code := exitCodeFor(err)
			if code != ExitPeerClosed {
				c.logger.Warn("stream failed", "conn_id", connID, "error", err)
				c.logError(connID, err, code)
				c.setDispatching(true)
				c.handler.OnError(err)
				c.setDispatching(false)
			}
			c.shutdown(code, true)
			return
		}
		c.setDispatching(true)
		c.handler.OnElement(el)
		c.setDispatching(false)
	}
}

func (c *Conn) setDispatching(v bool) {
	c.mu.Lock()
	c.dispatching = v
	c.mu.Unlock()
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, wire.ErrCorruptStream):
		return ExitProtocolError
	case errors.Is(err, io.EOF):
		return ExitPeerClosed
	default:
		return ExitIOError
	}
}

// setStateLocked changes state and wakes all waiters. c.mu must be held.
func (c *Conn) setStateLocked(s State, reason string) {
	old := c.state
	c.state = s
	c.cond.Broadcast()

	event := &log.StateChangeEvent{
		Entity:   log.StateEntityConnection,
		OldState: old.String(),
		NewState: s.String(),
		Reason:   reason,
	}
	if s == StateDisconnected {
		code := c.exitCode
		event.ExitCode = &code
	}
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.address,
		StateChange:  event,
	})
	c.logger.Debug("state change", "old", old, "new", s, "conn_id", c.connID)
}

func (c *Conn) logFrame(connID string, dir log.Direction, data []byte) {
	if len(data) == 0 {
		return
	}
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        log.NewFrameEvent(data),
	})
}

func (c *Conn) logError(connID string, err error, code int) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Code:    &code,
			Context: "read",
		},
	})
}

// captureReader records every chunk read from the socket.
type captureReader struct {
	r      io.Reader
	conn   *Conn
	connID string
}

func (cr *captureReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.conn.logFrame(cr.connID, log.DirectionIn, p[:n])
	}
	return n, err
}
