package client

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indiproto/indi-go/internal/indiserver"
	"github.com/indiproto/indi-go/pkg/model"
	"github.com/indiproto/indi-go/pkg/transport"
	"github.com/indiproto/indi-go/pkg/wire"
)

const waitTimeout = 2 * time.Second

type event struct {
	kind     string
	device   string
	property string
	text     string
	code     int
}

// recorder is a Mediator that forwards every callback to a channel, since
// session callbacks arrive on the listener goroutine.
type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 256)}
}

func (r *recorder) NewDevice(d *model.Device) {
	r.events <- event{kind: "NewDevice", device: d.Name()}
}

func (r *recorder) RemoveDevice(d *model.Device) {
	r.events <- event{kind: "RemoveDevice", device: d.Name()}
}

func (r *recorder) NewProperty(p *model.Property) {
	r.events <- event{kind: "NewProperty", device: p.DeviceName(), property: p.Name()}
}

func (r *recorder) UpdateProperty(p *model.Property) {
	r.events <- event{kind: "UpdateProperty", device: p.DeviceName(), property: p.Name()}
}

func (r *recorder) RemoveProperty(p *model.Property) {
	r.events <- event{kind: "RemoveProperty", device: p.DeviceName(), property: p.Name()}
}

func (r *recorder) NewMessage(d *model.Device, msg model.Message) {
	e := event{kind: "NewMessage", text: msg.Text}
	if d != nil {
		e.device = d.Name()
	}
	r.events <- e
}

func (r *recorder) ServerConnected() {
	r.events <- event{kind: "ServerConnected"}
}

func (r *recorder) ServerDisconnected(code int) {
	r.events <- event{kind: "ServerDisconnected", code: code}
}

func (r *recorder) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for mediator callback")
		return event{}
	}
}

func startServer(t *testing.T) *indiserver.Server {
	t.Helper()
	srv := indiserver.New(indiserver.Config{})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func serverConfig(t *testing.T, srv *indiserver.Server) Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	config := DefaultConfig()
	config.Host = host
	config.Port = port
	return config
}

func newTestClient(t *testing.T, config Config) (*Client, *recorder) {
	t.Helper()
	rec := newRecorder()
	c, err := New(config, rec)
	require.NoError(t, err)
	t.Cleanup(func() { c.Disconnect(transport.ExitNormal) })
	return c, rec
}

func connectClient(t *testing.T, c *Client, rec *recorder, srv *indiserver.Server) *indiserver.Conn {
	t.Helper()
	require.NoError(t, c.Connect(context.Background()))
	sc, err := srv.Accept(waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, "ServerConnected", rec.next(t).kind)
	return sc
}

func nextCommand(t *testing.T, sc *indiserver.Conn) *wire.Element {
	t.Helper()
	el, err := sc.Next(waitTimeout)
	require.NoError(t, err)
	return el
}

func memberValues(el *wire.Element) map[string]string {
	out := make(map[string]string)
	for _, child := range el.Children {
		out[child.Name()] = child.Value()
	}
	return out
}

const defConnection = `<defSwitchVector device="CCD" name="CONNECTION" perm="rw" rule="OneOfMany">
  <defSwitch name="CONNECT">Off</defSwitch>
  <defSwitch name="DISCONNECT">On</defSwitch>
</defSwitchVector>`

// defineCCD sends a small device and waits until the client has stored it.
func defineCCD(t *testing.T, sc *indiserver.Conn, rec *recorder) {
	t.Helper()
	require.NoError(t, sc.SendString(defConnection+`
<defNumberVector device="CCD" name="EXPOSURE" perm="rw"><defNumber name="SECONDS" format="%.2f">1</defNumber></defNumberVector>
<defTextVector device="CCD" name="INFO" perm="ro"><defText name="MODEL">X</defText></defTextVector>
<defBLOBVector device="CCD" name="UPLOAD" perm="wo"><defBLOB name="FILE"/></defBLOBVector>`))
	assert.Equal(t, event{kind: "NewDevice", device: "CCD"}, rec.next(t))
	for _, name := range []string{"CONNECTION", "EXPOSURE", "INFO", "UPLOAD"} {
		assert.Equal(t, event{kind: "NewProperty", device: "CCD", property: name}, rec.next(t))
	}
}

func TestConnectRequestsAllProperties(t *testing.T) {
	srv := startServer(t)
	c, rec := newTestClient(t, serverConfig(t, srv))

	sc := connectClient(t, c, rec, srv)

	el := nextCommand(t, sc)
	assert.Equal(t, wire.TagGetProperties, el.Tag())
	assert.Equal(t, "1.7", el.Attr(wire.AttrVersion))
	_, hasDevice := el.LookupAttr(wire.AttrDevice)
	assert.False(t, hasDevice)

	assert.True(t, c.IsConnected())
	assert.Equal(t, transport.StateConnected, c.State())
	assert.NotEmpty(t, c.ConnectionID())
}

func TestConnectRequestsWatchedAndReplaysBLOBModes(t *testing.T) {
	srv := startServer(t)
	c, rec := newTestClient(t, serverConfig(t, srv))

	require.NoError(t, c.WatchProperty("MOUNT", "EQUATORIAL_EOD_COORD"), "not connected yet")
	require.NoError(t, c.WatchDevice("CCD"))
	require.NoError(t, c.SetBLOBMode(wire.BLOBAlso, "CCD", ""))
	require.NoError(t, c.SetBLOBMode(wire.BLOBOnly, "CCD", "CCD1"))

	sc := connectClient(t, c, rec, srv)

	el := nextCommand(t, sc)
	assert.Equal(t, wire.TagGetProperties, el.Tag())
	assert.Equal(t, "CCD", el.Device())
	assert.Equal(t, "", el.Name())

	el = nextCommand(t, sc)
	assert.Equal(t, "MOUNT", el.Device())
	assert.Equal(t, "EQUATORIAL_EOD_COORD", el.Name())

	el = nextCommand(t, sc)
	assert.Equal(t, wire.TagEnableBLOB, el.Tag())
	assert.Equal(t, "CCD", el.Device())
	assert.Equal(t, "", el.Name())
	assert.Equal(t, "Also", el.Value())

	el = nextCommand(t, sc)
	assert.Equal(t, wire.TagEnableBLOB, el.Tag())
	assert.Equal(t, "CCD1", el.Name())
	assert.Equal(t, "Only", el.Value())
}

func TestWatchAndBLOBModeWhileConnected(t *testing.T) {
	srv := startServer(t)
	c, rec := newTestClient(t, serverConfig(t, srv))
	sc := connectClient(t, c, rec, srv)
	nextCommand(t, sc)

	require.NoError(t, c.WatchProperty("CCD", "EXPOSURE"))
	el := nextCommand(t, sc)
	assert.Equal(t, wire.TagGetProperties, el.Tag())
	assert.Equal(t, "CCD", el.Device())
	assert.Equal(t, "EXPOSURE", el.Name())

	require.NoError(t, c.SetBLOBMode(wire.BLOBAlso, "CCD", ""))
	el = nextCommand(t, sc)
	assert.Equal(t, wire.TagEnableBLOB, el.Tag())
	assert.Equal(t, "Also", el.Value())

	assert.Equal(t, wire.BLOBAlso, c.BLOBMode("CCD", "CCD1"))
	assert.Equal(t, wire.BLOBNever, c.BLOBMode("MOUNT", ""))
	require.Len(t, c.Watches(), 1)
	assert.Equal(t, []string{"EXPOSURE"}, c.Watches()[0].Properties)
}

func TestPingRequestIsAnswered(t *testing.T) {
	srv := startServer(t)
	c, rec := newTestClient(t, serverConfig(t, srv))
	sc := connectClient(t, c, rec, srv)
	nextCommand(t, sc)

	require.NoError(t, sc.SendString(`<pingRequest uid="abc123"/>`))

	el := nextCommand(t, sc)
	assert.Equal(t, wire.TagPingReply, el.Tag())
	assert.Equal(t, "abc123", el.Attr(wire.AttrUID))
}

func TestSessionMaintainsDeviceModel(t *testing.T) {
	srv := startServer(t)
	c, rec := newTestClient(t, serverConfig(t, srv))
	sc := connectClient(t, c, rec, srv)
	defineCCD(t, sc, rec)

	require.NoError(t, sc.SendString(`<setNumberVector device="CCD" name="EXPOSURE" state="Busy" message="exposing">
  <oneNumber name="SECONDS">0.5</oneNumber>
</setNumberVector>`))
	assert.Equal(t, event{kind: "UpdateProperty", device: "CCD", property: "EXPOSURE"}, rec.next(t))
	assert.Equal(t, event{kind: "NewMessage", device: "CCD", text: "exposing"}, rec.next(t))

	require.NoError(t, sc.SendString(`<message message="hello all"/><delProperty device="CCD" name="INFO"/><delProperty device="CCD"/>`))
	assert.Equal(t, event{kind: "NewMessage", text: "hello all"}, rec.next(t))
	assert.Equal(t, event{kind: "RemoveProperty", device: "CCD", property: "INFO"}, rec.next(t))
	assert.Equal(t, event{kind: "RemoveDevice", device: "CCD"}, rec.next(t))

	_, err := c.Device("CCD")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Empty(t, c.Devices())
}

func TestMalformedElementIsReportedAndSkipped(t *testing.T) {
	srv := startServer(t)
	config := serverConfig(t, srv)
	errs := make(chan error, 8)
	config.ErrorHandler = func(err error) { errs <- err }
	c, rec := newTestClient(t, config)
	sc := connectClient(t, c, rec, srv)
	defineCCD(t, sc, rec)

	require.NoError(t, sc.SendString(`<setNumberVector device="CCD" name="EXPOSURE"><oneNumber name="SECONDS">soon</oneNumber></setNumberVector>
<setTextVector device="NOPE" name="X"><oneText name="T">x</oneText></setTextVector>
<setNumberVector device="CCD" name="EXPOSURE"><oneNumber name="SECONDS">2</oneNumber></setNumberVector>`))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrMalformedElement)
	case <-time.After(waitTimeout):
		t.Fatal("no error reported")
	}
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrDeviceNotFound)
	case <-time.After(waitTimeout):
		t.Fatal("no error reported")
	}

	assert.Equal(t, event{kind: "UpdateProperty", device: "CCD", property: "EXPOSURE"}, rec.next(t))
	assert.True(t, c.IsConnected(), "per-element errors never end the session")

	dev, err := c.Device("CCD")
	require.NoError(t, err)
	m, _ := dev.Property("EXPOSURE").Member("SECONDS")
	assert.Equal(t, 2.0, m.Number)
}

func TestPeerCloseKeepsDevices(t *testing.T) {
	srv := startServer(t)
	c, rec := newTestClient(t, serverConfig(t, srv))
	sc := connectClient(t, c, rec, srv)
	defineCCD(t, sc, rec)

	require.NoError(t, sc.Close())

	assert.Equal(t, event{kind: "ServerDisconnected", code: transport.ExitPeerClosed}, rec.next(t))
	assert.False(t, c.IsConnected())
	assert.Equal(t, transport.ExitPeerClosed, c.ExitCode())
	assert.Len(t, c.Devices(), 1)
}

func TestResetOnDisconnect(t *testing.T) {
	srv := startServer(t)
	config := serverConfig(t, srv)
	config.ResetOnDisconnect = true
	c, rec := newTestClient(t, config)
	require.NoError(t, c.WatchDevice("CCD"))
	require.NoError(t, c.SetBLOBMode(wire.BLOBAlso, "CCD", ""))
	sc := connectClient(t, c, rec, srv)
	defineCCD(t, sc, rec)

	require.NoError(t, c.Disconnect(7))

	assert.Equal(t, event{kind: "ServerDisconnected", code: 7}, rec.next(t))
	assert.Equal(t, 7, c.ExitCode())
	assert.Empty(t, c.Devices())
	assert.Empty(t, c.Watches())
	assert.Empty(t, c.BLOBModes())
}

func TestReconnectStartsFresh(t *testing.T) {
	srv := startServer(t)
	c, rec := newTestClient(t, serverConfig(t, srv))
	sc := connectClient(t, c, rec, srv)
	defineCCD(t, sc, rec)
	firstID := c.ConnectionID()

	require.NoError(t, c.Disconnect(transport.ExitNormal))
	assert.Equal(t, event{kind: "ServerDisconnected", code: transport.ExitNormal}, rec.next(t))
	assert.Len(t, c.Devices(), 1, "devices survive until the next connect")
	assert.Eventually(t, func() bool { return srv.ConnectionCount() == 0 }, waitTimeout, 10*time.Millisecond)

	connectClient(t, c, rec, srv)
	assert.Equal(t, 1, srv.ConnectionCount())
	assert.Empty(t, c.Devices())
	assert.NotEqual(t, firstID, c.ConnectionID())
}

func TestConnectTwiceFails(t *testing.T) {
	srv := startServer(t)
	c, rec := newTestClient(t, serverConfig(t, srv))
	sc := connectClient(t, c, rec, srv)
	defineCCD(t, sc, rec)

	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)
	assert.ErrorIs(t, c.SetServer("other", 7625), ErrAlreadyConnected)
	assert.Len(t, c.Devices(), 1, "a rejected Connect keeps the live session's devices")
}

func TestServerConnectedIsFirstCallback(t *testing.T) {
	// A server that defines a device and hangs up as soon as it accepts.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			nc, err := l.Accept()
			if err != nil {
				return
			}
			nc.Write([]byte(`<defTextVector device="A" name="P" perm="ro"><defText name="T">x</defText></defTextVector>`))
			nc.Close()
		}
	}()
	host, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		config := DefaultConfig()
		config.Host = host
		config.Port = port
		c, rec := newTestClient(t, config)

		require.NoError(t, c.Connect(context.Background()), "round %d", i)
		assert.Equal(t, "ServerConnected", rec.next(t).kind, "round %d", i)

		for {
			e := rec.next(t)
			if e.kind == "ServerDisconnected" {
				assert.Contains(t, []int{transport.ExitPeerClosed, transport.ExitIOError}, e.code)
				break
			}
			assert.Contains(t, []string{"NewDevice", "NewProperty"}, e.kind, "round %d", i)
		}
	}
}

func TestConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)
	l.Close()

	c, _ := newTestClient(t, Config{Host: "127.0.0.1", Port: port, ConnectTimeout: time.Second})
	err = c.Connect(context.Background())

	var connErr *transport.ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.Equal(t, transport.ExitConnectFailed, c.ExitCode())
	assert.False(t, c.IsConnected())
}

func TestSetServer(t *testing.T) {
	c, _ := newTestClient(t, DefaultConfig())
	assert.Equal(t, "localhost:7624", c.Address())

	require.NoError(t, c.SetServer("indi.example", 7625))
	assert.Equal(t, "indi.example:7625", c.Address())

	assert.Error(t, c.SetServer("indi.example", 70000))
	assert.Equal(t, "indi.example:7625", c.Address(), "invalid address is not applied")
}

func TestSetDriverConnection(t *testing.T) {
	srv := startServer(t)
	c, rec := newTestClient(t, serverConfig(t, srv))
	sc := connectClient(t, c, rec, srv)
	nextCommand(t, sc)

	assert.ErrorIs(t, c.SetDriverConnection(true, "CCD"), ErrDeviceNotFound)

	defineCCD(t, sc, rec)
	require.NoError(t, c.SetDriverConnection(true, "CCD"))
	el := nextCommand(t, sc)
	assert.Equal(t, wire.TagNewSwitchVector, el.Tag())
	assert.Equal(t, "CCD", el.Device())
	assert.Equal(t, ConnectionProperty, el.Name())
	assert.Equal(t, map[string]string{ConnectSwitch: "On", DisconnectSwitch: "Off"}, memberValues(el))

	require.NoError(t, c.SetDriverConnection(false, "CCD"))
	el = nextCommand(t, sc)
	assert.Equal(t, map[string]string{ConnectSwitch: "Off", DisconnectSwitch: "On"}, memberValues(el))
}

func TestSendNewValues(t *testing.T) {
	srv := startServer(t)
	c, rec := newTestClient(t, serverConfig(t, srv))
	sc := connectClient(t, c, rec, srv)
	nextCommand(t, sc)
	defineCCD(t, sc, rec)

	require.NoError(t, c.SendNewNumber("CCD", "EXPOSURE", map[string]float64{"SECONDS": 2.5}))
	el := nextCommand(t, sc)
	assert.Equal(t, wire.TagNewNumberVector, el.Tag())
	assert.Equal(t, map[string]string{"SECONDS": "2.5"}, memberValues(el))

	require.NoError(t, c.SelectSwitch("CCD", "CONNECTION", "CONNECT"))
	el = nextCommand(t, sc)
	assert.Equal(t, map[string]string{"CONNECT": "On", "DISCONNECT": "Off"}, memberValues(el))

	require.NoError(t, c.SendNewBLOB("CCD", "UPLOAD", "FILE", ".txt", []byte("hello")))
	el = nextCommand(t, sc)
	assert.Equal(t, wire.TagNewBLOBVector, el.Tag())
	require.Len(t, el.Children, 1)
	assert.Equal(t, "aGVsbG8=", el.Children[0].Value())
	assert.Equal(t, "5", el.Children[0].Attr(wire.AttrSize))
	assert.Equal(t, ".txt", el.Children[0].Attr(wire.AttrFormat))
}

func TestSendNewValidation(t *testing.T) {
	srv := startServer(t)
	c, rec := newTestClient(t, serverConfig(t, srv))
	sc := connectClient(t, c, rec, srv)
	nextCommand(t, sc)
	defineCCD(t, sc, rec)

	tests := []struct {
		name string
		send func() error
		want error
	}{
		{"unknown device", func() error {
			return c.SendNewText("MOUNT", "INFO", map[string]string{"MODEL": "y"})
		}, ErrDeviceNotFound},
		{"unknown property", func() error {
			return c.SendNewText("CCD", "NOPE", map[string]string{"MODEL": "y"})
		}, ErrPropertyNotFound},
		{"wrong type", func() error {
			return c.SendNewText("CCD", "EXPOSURE", map[string]string{"SECONDS": "y"})
		}, model.ErrTypeMismatch},
		{"read only", func() error {
			return c.SendNewText("CCD", "INFO", map[string]string{"MODEL": "y"})
		}, ErrReadOnly},
		{"unknown member", func() error {
			return c.SendNewNumber("CCD", "EXPOSURE", map[string]float64{"MINUTES": 1})
		}, model.ErrUnknownMember},
		{"unknown switch", func() error {
			return c.SelectSwitch("CCD", "CONNECTION", "RESET")
		}, model.ErrUnknownMember},
		{"switch type", func() error {
			return c.SendNewSwitch("CCD", "EXPOSURE", map[string]wire.SwitchState{"SECONDS": wire.SwitchOn})
		}, model.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.send(), tt.want)
		})
	}
}

func TestSendWhenDisconnected(t *testing.T) {
	c, _ := newTestClient(t, DefaultConfig())

	assert.ErrorIs(t, c.SendCommand(wire.GetProperties{Version: "1.7"}), ErrNotConnected)
	assert.NoError(t, c.WatchDevice("CCD"), "recorded for the next connect")
	assert.NoError(t, c.Disconnect(transport.ExitNormal), "disconnect when idle is a no-op")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"port zero", func(c *Config) { c.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Port = 65536 }, true},
		{"bad version", func(c *Config) { c.ProtocolVersion = "one" }, true},
		{"incompatible version", func(c *Config) { c.ProtocolVersion = "2.0" }, true},
		{"older minor", func(c *Config) { c.ProtocolVersion = "1.5" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)
			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "localhost:7624", c.Address())
	assert.Equal(t, "1.7", c.protocolVersion())

	_, err = New(Config{ProtocolVersion: "x"}, nil)
	assert.Error(t, err)
}
