package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/indiproto/indi-go/pkg/transport"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// DefaultAttemptTimeout bounds a single reconnection attempt.
const DefaultAttemptTimeout = 30 * time.Second

// State represents the managed connection state.
type State uint8

const (
	// StateDisconnected indicates no active session.
	StateDisconnected State = iota

	// StateConnecting indicates a Connect call is in progress.
	StateConnecting

	// StateConnected indicates an active session.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes a session. It returns nil on success.
type ConnectFunc func(ctx context.Context) error

// DisconnectFunc ends the session with the given exit code.
type DisconnectFunc func(exitCode int) error

// ShouldReconnect reports whether a session that ended with exitCode is
// re-established automatically.
func ShouldReconnect(exitCode int) bool {
	return exitCode == transport.ExitPeerClosed || exitCode == transport.ExitIOError
}

// Manager manages the lifecycle of one client session with automatic
// reconnection.
type Manager struct {
	mu sync.RWMutex

	state State

	// lost is set when the session ends while a connect is still running.
	lost     bool
	lostCode int

	backoff        *Backoff
	attemptTimeout time.Duration
	connectFn      ConnectFunc
	disconnectFn   DisconnectFunc
	autoReconnect  bool
	logger         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// reconnectCh signals that reconnection should start.
	reconnectCh chan struct{}

	onStateChange  func(oldState, newState State)
	onConnected    func()
	onDisconnected func(exitCode int)
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a manager. disconnectFn may be nil when the caller
// closes the session itself.
func NewManager(connectFn ConnectFunc, disconnectFn DisconnectFunc) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		state:          StateDisconnected,
		backoff:        NewBackoff(DefaultBackoffConfig()),
		attemptTimeout: DefaultAttemptTimeout,
		connectFn:      connectFn,
		disconnectFn:   disconnectFn,
		autoReconnect:  true,
		logger:         slog.Default(),
		ctx:            ctx,
		cancel:         cancel,
		reconnectCh:    make(chan struct{}, 1),
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if a session is active.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateConnected
}

// SetAutoReconnect enables or disables automatic reconnection.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// SetBackoff replaces the reconnect schedule.
func (m *Manager) SetBackoff(cfg BackoffConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backoff = NewBackoff(cfg)
}

// SetLogger sets the operational logger.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// Connect establishes a session.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrConnectionClosed
	}
	oldState := m.state
	m.state = StateConnecting
	m.lost = false
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateConnecting)

	if err := m.connectFn(ctx); err != nil {
		m.transition(StateConnecting, StateDisconnected)
		return err
	}
	m.connected()
	return nil
}

// Disconnect ends the session with exitCode. The session is not
// re-established.
func (m *Manager) Disconnect(exitCode int) error {
	m.mu.Lock()
	if m.state == StateDisconnected || m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	oldState := m.state
	m.state = StateDisconnected
	onDisconnected := m.onDisconnected
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateDisconnected)

	var err error
	if m.disconnectFn != nil {
		err = m.disconnectFn(exitCode)
	}
	if onDisconnected != nil {
		onDisconnected(exitCode)
	}
	return err
}

// NotifyConnectionLost reports that the session ended with exitCode. It
// must not block, so it is safe to call from a mediator callback.
func (m *Manager) NotifyConnectionLost(exitCode int) {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateReconnecting {
		m.lost = true
		m.lostCode = exitCode
		m.mu.Unlock()
		return
	}
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	oldState := m.state
	reconnect := m.autoReconnect && ShouldReconnect(exitCode)
	if reconnect {
		m.state = StateReconnecting
	} else {
		m.state = StateDisconnected
	}
	newState := m.state
	onDisconnected := m.onDisconnected
	logger := m.logger
	m.mu.Unlock()

	logger.Info("session lost", "exit_code", exitCode, "reconnect", reconnect)
	m.notifyStateChange(oldState, newState)
	if onDisconnected != nil {
		onDisconnected(exitCode)
	}

	if reconnect {
		m.triggerReconnect()
	}
}

// StartReconnectLoop starts the background reconnection loop.
// Must be called once before reconnection will work.
func (m *Manager) StartReconnectLoop() {
	m.wg.Add(1)
	go m.reconnectLoop()
}

// Close stops reconnecting. It does not end an active session.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	m.state = StateClosed
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateClosed)

	m.cancel()
	m.wg.Wait()
}

// BackoffAttempts returns the number of reconnection attempts since the
// last successful connect.
func (m *Manager) BackoffAttempts() int {
	return m.currentBackoff().Attempts()
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback for successful connects.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected sets a callback for session ends.
func (m *Manager) OnDisconnected(fn func(exitCode int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnReconnecting sets a callback invoked before each reconnection attempt.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// connected moves Connecting or Reconnecting to Connected, unless the
// session already ended in the meantime.
func (m *Manager) connected() {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return
	case StateDisconnected:
		// Disconnect ran while the attempt was in flight.
		m.mu.Unlock()
		if m.disconnectFn != nil {
			_ = m.disconnectFn(transport.ExitNormal)
		}
		return
	}
	oldState := m.state
	m.backoff.Reset()
	if m.lost {
		m.lost = false
		reconnect := m.autoReconnect && ShouldReconnect(m.lostCode)
		m.state = StateDisconnected
		if reconnect {
			m.state = StateReconnecting
		}
		newState := m.state
		m.mu.Unlock()
		m.notifyStateChange(oldState, newState)
		if reconnect {
			m.triggerReconnect()
		}
		return
	}
	m.state = StateConnected
	onConnected := m.onConnected
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateConnected)
	if onConnected != nil {
		onConnected()
	}
}

func (m *Manager) transition(from, to State) {
	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		return
	}
	m.state = to
	m.mu.Unlock()
	m.notifyStateChange(from, to)
}

func (m *Manager) notifyStateChange(oldState, newState State) {
	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(oldState, newState)
	}
}

func (m *Manager) currentBackoff() *Backoff {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backoff
}

func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

// attemptReconnect retries with backoff until a connect succeeds, the
// schedule runs out or the manager leaves StateReconnecting.
func (m *Manager) attemptReconnect() {
	for {
		if m.State() != StateReconnecting {
			return
		}

		backoff := m.currentBackoff()
		delay, ok := backoff.Next()
		attempts := backoff.Attempts()

		m.mu.RLock()
		onReconnecting := m.onReconnecting
		logger := m.logger
		m.mu.RUnlock()
		if !ok {
			logger.Warn("giving up reconnecting", "attempts", attempts)
			m.transition(StateReconnecting, StateDisconnected)
			return
		}
		if onReconnecting != nil {
			onReconnecting(attempts, delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.lost = false
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(m.ctx, m.attemptTimeout)
		err := m.connectFn(ctx)
		cancel()

		if err == nil {
			logger.Info("reconnected", "attempt", attempts)
			m.connected()
			return
		}
		logger.Debug("reconnect failed", "attempt", attempts, "error", err)
	}
}
