package interactive

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/indiproto/indi-go/internal/indiserver"
	"github.com/indiproto/indi-go/pkg/client"
	"github.com/indiproto/indi-go/pkg/connection"
	"github.com/indiproto/indi-go/pkg/discovery"
	"github.com/indiproto/indi-go/pkg/transport"
	"github.com/indiproto/indi-go/pkg/wire"
)

const waitTimeout = 2 * time.Second

const defTelescope = `<defSwitchVector device="Telescope" name="CONNECTION" perm="rw" rule="OneOfMany">
  <defSwitch name="CONNECT">Off</defSwitch>
  <defSwitch name="DISCONNECT">On</defSwitch>
</defSwitchVector>
<defNumberVector device="Telescope" name="EQUATORIAL_EOD_COORD" perm="rw" state="Idle">
  <defNumber name="RA" format="%010.6m" min="0" max="24">12.5</defNumber>
  <defNumber name="DEC" format="%010.6m" min="-90" max="90">-45.5</defNumber>
</defNumberVector>
<message device="Telescope" timestamp="2024-03-01T12:00:00" message="Telescope is online"/>`

type fakeBrowser struct {
	servers []*discovery.Server
	err     error
}

func (b *fakeBrowser) Browse(ctx context.Context) (<-chan *discovery.Server, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBrowser) FindAll(ctx context.Context) ([]*discovery.Server, error) {
	return b.servers, b.err
}

func (b *fakeBrowser) Find(ctx context.Context, instance string) (*discovery.Server, error) {
	return nil, discovery.ErrNotFound
}

func (b *fakeBrowser) Stop() {}

type fixture struct {
	srv     *indiserver.Server
	client  *client.Client
	manager *connection.Manager
	console *Console
	out     *bytes.Buffer
}

func newFixture(t *testing.T, browser discovery.Browser) *fixture {
	t.Helper()

	srv := indiserver.New(indiserver.Config{})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	host, portStr, _ := net.SplitHostPort(srv.Addr())
	port, _ := strconv.Atoi(portStr)
	config := client.DefaultConfig()
	config.Host = host
	config.Port = port

	var c *client.Client
	m := connection.NewManager(
		func(ctx context.Context) error { return c.Connect(ctx) },
		func(code int) error { return c.Disconnect(code) },
	)
	c, err := client.New(config, connection.WatchExits(nil, m))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() {
		m.Close()
		c.Disconnect(transport.ExitNormal)
	})

	out := &bytes.Buffer{}
	return &fixture{
		srv:     srv,
		client:  c,
		manager: m,
		console: newConsole(c, m, browser, out),
		out:     out,
	}
}

// run executes line and returns what it printed.
func (f *fixture) run(t *testing.T, line string) string {
	t.Helper()
	f.out.Reset()
	if !f.console.Execute(context.Background(), line) {
		t.Fatalf("%q ended the console", line)
	}
	return f.out.String()
}

// connect connects the console and defines the telescope.
func (f *fixture) connect(t *testing.T) *indiserver.Conn {
	t.Helper()
	if out := f.run(t, "connect"); !strings.Contains(out, "Connected") {
		t.Fatalf("connect output: %s", out)
	}
	sc, err := f.srv.Accept(waitTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if el, err := sc.Next(waitTimeout); err != nil || el.Tag() != wire.TagGetProperties {
		t.Fatalf("expected getProperties, got %v, %v", el, err)
	}
	if err := sc.SendString(defTelescope); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		d, err := f.client.Device("Telescope")
		return err == nil && d.PropertyCount() == 2 && len(d.Messages()) == 1
	})
	return sc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func expectOutput(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("expected %q in output:\n%s", w, out)
		}
	}
}

func TestConsoleInspection(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	expectOutput(t, f.run(t, "devices"), "Telescope", "2 properties", "Telescope is online")
	expectOutput(t, f.run(t, "props Telescope"), "Telescope (2 properties)", "CONNECTION", "RA = 12:30:00")
	expectOutput(t, f.run(t, "props Telescope.CONNECTION"), "CONNECT = Off", "DISCONNECT = On")
	expectOutput(t, f.run(t, "props Nobody"), "Error:")
	expectOutput(t, f.run(t, "props Telescope.GHOST"), "no property GHOST")

	out := f.run(t, "get Telescope.EQUATORIAL_EOD_COORD")
	if out != "Telescope.EQUATORIAL_EOD_COORD.RA=12:30:00\nTelescope.EQUATORIAL_EOD_COORD.DEC=-45:30:00\n" {
		t.Errorf("get output:\n%q", out)
	}
	expectOutput(t, f.run(t, "get *.*.NOPE"), "No match")

	expectOutput(t, f.run(t, "messages"), "Telescope", "Telescope is online")
	expectOutput(t, f.run(t, "messages Nobody"), "Error:")
}

func TestConsoleControl(t *testing.T) {
	f := newFixture(t, nil)
	sc := f.connect(t)

	expectOutput(t, f.run(t, "set Telescope.EQUATORIAL_EOD_COORD.RA;DEC=10:30:00;-5"), "Sent Telescope.EQUATORIAL_EOD_COORD")
	el, err := sc.Next(waitTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if el.Tag() != "newNumberVector" || len(el.Children) != 2 {
		t.Errorf("got %s with %d members", el.Tag(), len(el.Children))
	}

	expectOutput(t, f.run(t, "enable Telescope"), "Connecting Telescope")
	el, err = sc.Next(waitTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if el.Tag() != "newSwitchVector" || el.Name() != client.ConnectionProperty {
		t.Errorf("got %s %s", el.Tag(), el.Name())
	}

	expectOutput(t, f.run(t, "disable Nobody"), "Error:")
	expectOutput(t, f.run(t, "set Telescope.CONNECTION.CONNECT=maybe"), "Error:")
	expectOutput(t, f.run(t, "set nonsense"), "Error:")

	expectOutput(t, f.run(t, "watch Telescope.EQUATORIAL_EOD_COORD"), "Watching Telescope.EQUATORIAL_EOD_COORD")
	el, err = sc.Next(waitTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if el.Tag() != wire.TagGetProperties || el.Name() != "EQUATORIAL_EOD_COORD" {
		t.Errorf("got %s %s", el.Tag(), el.Name())
	}
	expectOutput(t, f.run(t, "watch"), "Telescope: EQUATORIAL_EOD_COORD")

	expectOutput(t, f.run(t, "blob also Telescope"), "BLOB mode Also for Telescope")
	el, err = sc.Next(waitTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if el.Tag() != wire.TagEnableBLOB || el.Value() != "Also" {
		t.Errorf("got %s %q", el.Tag(), el.Value())
	}
	expectOutput(t, f.run(t, "blob sometimes Telescope"), "Error:")
	expectOutput(t, f.run(t, "status"), "CONNECTED", "Devices:        1", "Watches:        1", "BLOB:           Telescope Also")
}

func TestConsoleDisconnect(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	expectOutput(t, f.run(t, "disconnect"), "Disconnected")
	if f.client.IsConnected() {
		t.Error("client still connected")
	}
	expectOutput(t, f.run(t, "disconnect"), "Not connected")
	expectOutput(t, f.run(t, "status"), "DISCONNECTED", "Last exit code: 0")
}

func TestConsoleConnectFailure(t *testing.T) {
	f := newFixture(t, nil)

	expectOutput(t, f.run(t, "connect 127.0.0.1:notaport"), "Invalid address")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	expectOutput(t, f.run(t, "connect "+addr), "Connecting to "+addr, "Connect failed")
	if f.client.Address() != addr {
		t.Errorf("Address() = %q, want %q", f.client.Address(), addr)
	}
}

func TestConsoleDiscover(t *testing.T) {
	f := newFixture(t, nil)
	expectOutput(t, f.run(t, "discover"), "not available")

	f = newFixture(t, &fakeBrowser{})
	expectOutput(t, f.run(t, "discover"), "No INDI servers found")

	f = newFixture(t, &fakeBrowser{err: errors.New("no multicast")})
	expectOutput(t, f.run(t, "discover"), "Discovery error: no multicast")

	f = newFixture(t, &fakeBrowser{servers: []*discovery.Server{
		{Instance: "Observatory", Host: "obs.local", Port: 7624, Version: "1.7"},
	}})
	expectOutput(t, f.run(t, "discover"), "Found 1 server(s)", "1. Observatory (obs.local:7624, protocol 1.7)")
}

func TestConsoleUsageAndQuit(t *testing.T) {
	f := newFixture(t, nil)

	for _, line := range []string{"props", "get", "set", "blob also", "enable"} {
		expectOutput(t, f.run(t, line), "Usage:")
	}
	expectOutput(t, f.run(t, "frobnicate"), "Unknown command: frobnicate")
	expectOutput(t, f.run(t, "help"), "INDI Client Commands")
	if out := f.run(t, "   "); out != "" {
		t.Errorf("blank line printed %q", out)
	}

	if f.console.Execute(context.Background(), "quit") {
		t.Error("quit did not end the console")
	}
}

func TestParseHostPort(t *testing.T) {
	tests := []struct {
		in       string
		host     string
		port     int
		hasError bool
	}{
		{"localhost", "localhost", transport.DefaultPort, false},
		{"obs.local:7625", "obs.local", 7625, false},
		{"[::1]:7624", "::1", 7624, false},
		{"host:port", "", 0, true},
	}
	for _, tt := range tests {
		host, port, err := parseHostPort(tt.in)
		if (err != nil) != tt.hasError {
			t.Errorf("parseHostPort(%q) error = %v", tt.in, err)
			continue
		}
		if host != tt.host || port != tt.port {
			t.Errorf("parseHostPort(%q) = %s, %d", tt.in, host, port)
		}
	}
}
