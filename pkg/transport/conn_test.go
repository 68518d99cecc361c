package transport

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indiproto/indi-go/internal/indiserver"
	"github.com/indiproto/indi-go/pkg/log"
	"github.com/indiproto/indi-go/pkg/wire"
)

const waitTimeout = 2 * time.Second

type recordingHandler struct {
	mu           sync.Mutex
	calls        []string
	elements     []*wire.Element
	errs         []error
	disconnects  []int
	elementCh    chan *wire.Element
	disconnectCh chan int

	// Optional hooks, run after the call is recorded.
	onConnected    func()
	onElement      func(el *wire.Element)
	onError        func(err error)
	onDisconnected func(code int)
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		elementCh:    make(chan *wire.Element, 64),
		disconnectCh: make(chan int, 8),
	}
}

func (h *recordingHandler) OnConnected() {
	h.mu.Lock()
	h.calls = append(h.calls, "connected")
	h.mu.Unlock()
	if h.onConnected != nil {
		h.onConnected()
	}
}

func (h *recordingHandler) OnElement(el *wire.Element) {
	h.mu.Lock()
	h.calls = append(h.calls, "element")
	h.elements = append(h.elements, el)
	h.mu.Unlock()
	h.elementCh <- el
	if h.onElement != nil {
		h.onElement(el)
	}
}

func (h *recordingHandler) OnError(err error) {
	h.mu.Lock()
	h.calls = append(h.calls, "error")
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	if h.onError != nil {
		h.onError(err)
	}
}

func (h *recordingHandler) OnDisconnected(code int) {
	h.mu.Lock()
	h.calls = append(h.calls, "disconnected")
	h.disconnects = append(h.disconnects, code)
	h.mu.Unlock()
	if h.onDisconnected != nil {
		h.onDisconnected(code)
	}
	h.disconnectCh <- code
}

func (h *recordingHandler) callLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *recordingHandler) disconnectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.disconnects)
}

func (h *recordingHandler) nextElement(t *testing.T) *wire.Element {
	t.Helper()
	select {
	case el := <-h.elementCh:
		return el
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for element")
		return nil
	}
}

func (h *recordingHandler) nextDisconnect(t *testing.T) int {
	t.Helper()
	select {
	case code := <-h.disconnectCh:
		return code
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for disconnect")
		return 0
	}
}

func startServer(t *testing.T, config indiserver.Config) *indiserver.Server {
	t.Helper()
	srv := indiserver.New(config)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func connect(t *testing.T, srv *indiserver.Server, h Handler, config Config) (*Conn, *indiserver.Conn) {
	t.Helper()
	c := NewConn(config, h)
	require.NoError(t, c.Connect(context.Background(), srv.Addr()))
	sc, err := srv.Accept(waitTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { c.Disconnect(ExitNormal) })
	return c, sc
}

func TestConnectDeliversElementsInOrder(t *testing.T) {
	srv := startServer(t, indiserver.Config{})
	h := newRecordingHandler()
	c, sc := connect(t, srv, h, DefaultConfig())

	assert.Equal(t, StateConnected, c.State())
	assert.NotEmpty(t, c.ConnectionID())
	assert.Equal(t, srv.Addr(), c.Address())

	// Split across writes to exercise reassembly.
	require.NoError(t, sc.SendString(`<defTextVector device="A" name="P1"><defText name="T">x</defText></defTextVector><setTextV`))
	require.NoError(t, sc.SendString(`ector device="A" name="P1"><oneText name="T">y</oneText></setTextVector>
<message device="A" message="hi"/>`))

	assert.Equal(t, wire.TagDefTextVector, h.nextElement(t).Tag())
	assert.Equal(t, wire.TagSetTextVector, h.nextElement(t).Tag())
	assert.Equal(t, wire.TagMessage, h.nextElement(t).Tag())
}

func TestConnectFailureReportsConnectionError(t *testing.T) {
	// Reserve a port and release it so nothing is listening.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	h := newRecordingHandler()
	c := NewConn(Config{ConnectTimeout: time.Second}, h)
	err = c.Connect(context.Background(), addr)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, addr, connErr.Address)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, ExitConnectFailed, c.ExitCode())
	assert.Equal(t, 0, h.disconnectCount(), "no session, no disconnect callback")
}

func TestConnectTwiceFails(t *testing.T) {
	srv := startServer(t, indiserver.Config{})
	c, _ := connect(t, srv, newRecordingHandler(), DefaultConfig())

	err := c.Connect(context.Background(), srv.Addr())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, StateConnected, c.State())
}

func TestDisconnectDuringBlockedRead(t *testing.T) {
	srv := startServer(t, indiserver.Config{})
	h := newRecordingHandler()
	c, _ := connect(t, srv, h, DefaultConfig())

	// The listener is blocked in Read; nothing has been sent.
	finished := make(chan struct{})
	go func() {
		c.Disconnect(42)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(waitTimeout):
		t.Fatal("Disconnect did not complete")
	}

	assert.Equal(t, 42, h.nextDisconnect(t))
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 42, c.ExitCode())

	// Idempotent.
	require.NoError(t, c.Disconnect(7))
	assert.Equal(t, 42, c.ExitCode())
	assert.Equal(t, 1, h.disconnectCount())
}

func TestConnectThenImmediateDisconnect(t *testing.T) {
	srv := startServer(t, indiserver.Config{})

	for i := 0; i < 20; i++ {
		h := newRecordingHandler()
		c := NewConn(DefaultConfig(), h)
		require.NoError(t, c.Connect(context.Background(), srv.Addr()))

		c.mu.Lock()
		done := c.done
		c.mu.Unlock()

		require.NoError(t, c.Disconnect(ExitNormal))
		assert.Equal(t, StateDisconnected, c.State())
		select {
		case <-done:
		default:
			t.Fatal("listener still running after Disconnect returned")
		}
		assert.Equal(t, 1, h.disconnectCount())
	}
}

func TestPeerCloseDisconnectsOnce(t *testing.T) {
	srv := startServer(t, indiserver.Config{})
	h := newRecordingHandler()
	c, sc := connect(t, srv, h, DefaultConfig())

	require.NoError(t, sc.Close())

	assert.Equal(t, ExitPeerClosed, h.nextDisconnect(t))
	assert.Eventually(t, func() bool { return c.State() == StateDisconnected }, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, ExitPeerClosed, c.ExitCode())

	require.NoError(t, c.Disconnect(ExitNormal))
	assert.Equal(t, 1, h.disconnectCount())
}

func TestCorruptStreamIsProtocolError(t *testing.T) {
	srv := startServer(t, indiserver.Config{})
	h := newRecordingHandler()
	c, sc := connect(t, srv, h, DefaultConfig())

	require.NoError(t, sc.SendString(`<delProperty device="A"/></bogus>`))

	assert.Equal(t, wire.TagDelProperty, h.nextElement(t).Tag())
	assert.Equal(t, ExitProtocolError, h.nextDisconnect(t))
	assert.Equal(t, ExitProtocolError, c.ExitCode())

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.errs, 1)
	assert.ErrorIs(t, h.errs[0], wire.ErrCorruptStream)
}

func TestRacingDisconnectsFireOnce(t *testing.T) {
	srv := startServer(t, indiserver.Config{})

	for i := 0; i < 10; i++ {
		h := newRecordingHandler()
		c := NewConn(DefaultConfig(), h)
		require.NoError(t, c.Connect(context.Background(), srv.Addr()))
		sc, err := srv.Accept(waitTimeout)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); sc.Close() }()
		go func() { defer wg.Done(); c.Disconnect(1) }()
		go func() { defer wg.Done(); c.Disconnect(2) }()
		wg.Wait()

		code := h.nextDisconnect(t)
		assert.Contains(t, []int{1, 2, ExitPeerClosed}, code)
		assert.Eventually(t, func() bool { return c.State() == StateDisconnected }, waitTimeout, 5*time.Millisecond)
		assert.Equal(t, 1, h.disconnectCount())
	}
}

func TestConcurrentSendsDoNotInterleave(t *testing.T) {
	srv := startServer(t, indiserver.Config{})
	c, sc := connect(t, srv, newRecordingHandler(), DefaultConfig())

	const perSender = 40
	payload := func(device string, fill byte) []byte {
		return []byte(`<newTextVector device="` + device + `" name="P"><oneText name="T">` +
			strings.Repeat(string(fill), 32*1024) + `</oneText></newTextVector>`)
	}
	a := payload("A", 'a')
	b := payload("B", 'b')

	var wg sync.WaitGroup
	for _, p := range [][]byte{a, b} {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				n, err := c.Send(p)
				assert.NoError(t, err)
				assert.Equal(t, len(p), n)
			}
		}(p)
	}

	counts := map[string]int{}
	for i := 0; i < 2*perSender; i++ {
		el, err := sc.Next(waitTimeout)
		require.NoError(t, err)
		require.Len(t, el.Children, 1)
		want := strings.Repeat(strings.ToLower(el.Device()), 32*1024)
		require.Equal(t, want, el.Children[0].Value(), "payload from %s mixed", el.Device())
		counts[el.Device()]++
	}
	wg.Wait()

	assert.Equal(t, perSender, counts["A"])
	assert.Equal(t, perSender, counts["B"])
}

func TestSendWhenDisconnected(t *testing.T) {
	c := NewConn(DefaultConfig(), newRecordingHandler())
	n, err := c.Send([]byte("<x/>"))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestReconnectAfterDisconnect(t *testing.T) {
	srv := startServer(t, indiserver.Config{})
	h := newRecordingHandler()
	c := NewConn(DefaultConfig(), h)

	require.NoError(t, c.Connect(context.Background(), srv.Addr()))
	first := c.ConnectionID()
	require.NoError(t, c.Disconnect(ExitNormal))

	require.NoError(t, c.Connect(context.Background(), srv.Addr()))
	defer c.Disconnect(ExitNormal)
	assert.NotEqual(t, first, c.ConnectionID())
	assert.Equal(t, StateConnected, c.State())
}

func TestProtocolLoggerCapturesTraffic(t *testing.T) {
	var mu sync.Mutex
	var events []log.Event
	plog := log.LoggerFunc(func(e log.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	srv := startServer(t, indiserver.Config{})
	h := newRecordingHandler()
	c, sc := connect(t, srv, h, Config{ProtocolLogger: plog})

	_, err := c.Send([]byte(`<getProperties version="1.7"/>`))
	require.NoError(t, err)
	require.NoError(t, sc.SendString(`<pingRequest uid="1"/>`))
	h.nextElement(t)
	require.NoError(t, c.Disconnect(ExitNormal))
	assert.Eventually(t, func() bool { return c.State() == StateDisconnected }, waitTimeout, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var in, out, states int
	for _, e := range events {
		switch {
		case e.Frame != nil && e.Direction == log.DirectionIn:
			in++
		case e.Frame != nil && e.Direction == log.DirectionOut:
			out++
		case e.StateChange != nil:
			states++
		}
	}
	assert.GreaterOrEqual(t, in, 1)
	assert.Equal(t, 1, out)
	assert.Equal(t, 4, states, "connecting, connected, disconnecting, disconnected")
}

func TestOnConnectedRunsBeforeFirstElement(t *testing.T) {
	// The server talks and hangs up as soon as it accepts.
	srv := startServer(t, indiserver.Config{
		OnConnect: func(conn *indiserver.Conn) {
			conn.SendString(`<message device="A" message="hello"/>`)
			conn.Close()
		},
	})

	for i := 0; i < 20; i++ {
		h := newRecordingHandler()
		var stateInCallback State
		var c *Conn
		h.onConnected = func() { stateInCallback = c.State() }
		c = NewConn(DefaultConfig(), h)

		require.NoError(t, c.Connect(context.Background(), srv.Addr()))
		assert.Equal(t, StateConnected, stateInCallback, "Send works from OnConnected")
		assert.Equal(t, ExitPeerClosed, h.nextDisconnect(t))

		calls := h.callLog()
		require.NotEmpty(t, calls)
		assert.Equal(t, "connected", calls[0])
		assert.Equal(t, "disconnected", calls[len(calls)-1])
	}
}

func TestDisconnectFromElementCallback(t *testing.T) {
	srv := startServer(t, indiserver.Config{})
	h := newRecordingHandler()
	var c *Conn
	h.onElement = func(*wire.Element) {
		assert.NoError(t, c.Disconnect(9))
		// The close is left to the listener; nothing has been reported yet.
		assert.Equal(t, StateDisconnecting, c.State())
		assert.Equal(t, 0, h.disconnectCount())
	}
	c = NewConn(DefaultConfig(), h)
	require.NoError(t, c.Connect(context.Background(), srv.Addr()))
	sc, err := srv.Accept(waitTimeout)
	require.NoError(t, err)

	require.NoError(t, sc.SendString(`<pingRequest uid="1"/>`))

	h.nextElement(t)
	assert.Equal(t, 9, h.nextDisconnect(t))
	assert.Eventually(t, func() bool { return c.State() == StateDisconnected }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 9, c.ExitCode())
	assert.Equal(t, 1, h.disconnectCount())
}

func TestDisconnectFromErrorAndDisconnectCallbacks(t *testing.T) {
	srv := startServer(t, indiserver.Config{})
	h := newRecordingHandler()
	var c *Conn
	h.onError = func(error) { c.Disconnect(5) }
	h.onDisconnected = func(int) { c.Disconnect(6) }
	c = NewConn(DefaultConfig(), h)
	require.NoError(t, c.Connect(context.Background(), srv.Addr()))
	sc, err := srv.Accept(waitTimeout)
	require.NoError(t, err)

	require.NoError(t, sc.SendString(`</bogus>`))

	assert.Equal(t, 5, h.nextDisconnect(t), "the caller's code wins over the protocol error")
	assert.Eventually(t, func() bool { return c.State() == StateDisconnected }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 5, c.ExitCode())
	assert.Equal(t, 1, h.disconnectCount())
}

func TestConnectWaitsForPreviousSessionCallback(t *testing.T) {
	srv := startServer(t, indiserver.Config{})
	h := newRecordingHandler()
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	h.onDisconnected = func(int) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	c, sc := connect(t, srv, h, DefaultConfig())

	require.NoError(t, sc.Close())
	<-entered
	assert.Equal(t, StateDisconnecting, c.State())

	connected := make(chan error, 1)
	go func() { connected <- c.Connect(context.Background(), srv.Addr()) }()

	select {
	case <-connected:
		t.Fatal("Connect overlapped the previous session's OnDisconnected")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, ExitPeerClosed, h.nextDisconnect(t))
	select {
	case err := <-connected:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Connect did not complete")
	}
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, []string{"connected", "disconnected", "connected"}, h.callLog())
}

func TestErrorTypes(t *testing.T) {
	base := errors.New("boom")

	connErr := &ConnectionError{Address: "host:7624", Err: base}
	assert.ErrorIs(t, connErr, base)
	assert.Equal(t, "connect to host:7624: boom", connErr.Error())

	ioErr := &IOError{Op: "write", Err: base}
	assert.ErrorIs(t, ioErr, base)
	assert.Equal(t, "write: boom", ioErr.Error())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "DISCONNECTING", StateDisconnecting.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
