// Package interactive provides the interactive command-line interface
// for indi-client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/indiproto/indi-go/pkg/client"
	"github.com/indiproto/indi-go/pkg/connection"
	"github.com/indiproto/indi-go/pkg/discovery"
	"github.com/indiproto/indi-go/pkg/inspect"
	"github.com/indiproto/indi-go/pkg/model"
	"github.com/indiproto/indi-go/pkg/transport"
	"github.com/indiproto/indi-go/pkg/wire"
)

// Timeouts for console commands.
const (
	ConnectTimeout  = 10 * time.Second
	DiscoverTimeout = 5 * time.Second
)

// Console handles interactive mode for indi-client.
type Console struct {
	client    *client.Client
	manager   *connection.Manager
	browser   discovery.Browser
	inspector *inspect.Inspector
	formatter *inspect.Formatter
	rl        *readline.Instance
	out       io.Writer
}

// New creates a new interactive console. browser may be nil, which
// disables the discover command.
func New(c *client.Client, m *connection.Manager, browser discovery.Browser) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "indi> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	con := newConsole(c, m, browser, rl.Stdout())
	con.rl = rl
	return con, nil
}

func newConsole(c *client.Client, m *connection.Manager, browser discovery.Browser, out io.Writer) *Console {
	return &Console{
		client:    c,
		manager:   m,
		browser:   browser,
		inspector: inspect.NewInspector(c),
		formatter: inspect.NewFormatter(),
		out:       out,
	}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (con *Console) Stdout() io.Writer {
	return con.out
}

// Run starts the interactive command loop.
func (con *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer con.rl.Close()

	con.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := con.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(con.out, "Exiting...")
			cancel()
			return
		}

		if !con.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the console
// should exit.
func (con *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	// Device names may contain spaces, so most commands take the rest of
	// the line as one argument.
	rest := strings.TrimSpace(strings.TrimPrefix(input, parts[0]))

	switch cmd {
	case "help", "?":
		con.printHelp()

	case "connect":
		con.cmdConnect(ctx, args)

	case "disconnect":
		con.cmdDisconnect()

	case "devices", "ls":
		con.cmdDevices()

	case "props", "p":
		con.cmdProps(rest)

	case "get", "g":
		con.cmdGet(rest)

	case "set", "s":
		con.cmdSet(rest)

	case "watch":
		con.cmdWatch(rest)

	case "blob":
		con.cmdBLOB(args)

	case "enable":
		con.cmdDriverConnection(true, rest)

	case "disable":
		con.cmdDriverConnection(false, rest)

	case "messages", "msg":
		con.cmdMessages(rest)

	case "discover":
		con.cmdDiscover(ctx)

	case "status":
		con.cmdStatus()

	case "quit", "exit", "q":
		fmt.Fprintln(con.out, "Exiting...")
		return false

	default:
		fmt.Fprintf(con.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (con *Console) printHelp() {
	fmt.Fprintln(con.out, `
INDI Client Commands:
  Connection:
    connect [host[:port]]             - Connect (optionally to another server)
    disconnect                        - End the session
    discover                          - Browse for INDI servers via mDNS
    status                            - Show connection status

  Inspection:
    devices                           - List known devices
    props <device>[.<property>]       - Show properties of a device
    get <path>                        - Print values, e.g. get Telescope.*.RA
    messages [device]                 - Show device messages

  Control:
    set <dev>.<prop>.<m1>[;m2]=<v1>[;v2] - Send new values
    enable <device>                   - Connect the driver to its hardware
    disable <device>                  - Disconnect the driver from its hardware
    watch <device>[.<property>]       - Restrict the session to a device
    blob <never|also|only> <device>[.<property>] - Set BLOB delivery

  General:
    help                              - Show this help
    quit                              - Exit

  Path Format:
    DEVICE.PROPERTY.MEMBER, any part may be * and trailing parts may be omitted`)
}

// cmdConnect handles the connect command.
func (con *Console) cmdConnect(ctx context.Context, args []string) {
	if len(args) > 0 {
		host, port, err := parseHostPort(args[0])
		if err != nil {
			fmt.Fprintf(con.out, "Invalid address: %v\n", err)
			return
		}
		if err := con.client.SetServer(host, port); err != nil {
			fmt.Fprintf(con.out, "Error: %v\n", err)
			return
		}
	}

	fmt.Fprintf(con.out, "Connecting to %s...\n", con.client.Address())
	connectCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	if err := con.manager.Connect(connectCtx); err != nil {
		fmt.Fprintf(con.out, "Connect failed: %v\n", err)
		return
	}
	fmt.Fprintf(con.out, "Connected (session %s)\n", con.client.ConnectionID())
}

func parseHostPort(s string) (string, int, error) {
	if !strings.Contains(s, ":") {
		return s, transport.DefaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

// cmdDisconnect handles the disconnect command.
func (con *Console) cmdDisconnect() {
	if con.manager.State() == connection.StateDisconnected {
		fmt.Fprintln(con.out, "Not connected")
		return
	}
	if err := con.manager.Disconnect(transport.ExitNormal); err != nil {
		fmt.Fprintf(con.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(con.out, "Disconnected")
}

// cmdDevices handles the devices command.
func (con *Console) cmdDevices() {
	fmt.Fprint(con.out, con.formatter.FormatDeviceList(con.client.Devices()))
}

// cmdProps handles the props command.
func (con *Console) cmdProps(arg string) {
	if arg == "" {
		fmt.Fprintln(con.out, "Usage: props <device>[.<property>]")
		return
	}

	path, err := inspect.ParsePath(arg)
	if err != nil {
		fmt.Fprintf(con.out, "Invalid path: %v\n", err)
		return
	}
	d, err := con.client.Device(path.Device)
	if err != nil {
		fmt.Fprintf(con.out, "Error: %v\n", err)
		return
	}

	if path.Property == inspect.Wildcard {
		fmt.Fprint(con.out, con.formatter.FormatDevice(d))
		return
	}
	p := d.Property(path.Property)
	if p == nil {
		fmt.Fprintf(con.out, "Error: no property %s on %s\n", path.Property, d.Name())
		return
	}
	fmt.Fprint(con.out, con.formatter.FormatProperty(p))
}

// cmdGet handles the get command.
func (con *Console) cmdGet(arg string) {
	if arg == "" {
		fmt.Fprintln(con.out, "Usage: get <device>[.<property>[.<member>]]")
		fmt.Fprintln(con.out, "  Example: get Telescope.EQUATORIAL_EOD_COORD.RA")
		return
	}

	path, err := inspect.ParsePath(arg)
	if err != nil {
		fmt.Fprintf(con.out, "Invalid path: %v\n", err)
		return
	}
	values := con.inspector.Get(path)
	if len(values) == 0 {
		fmt.Fprintf(con.out, "No match for %s\n", path)
		return
	}
	fmt.Fprint(con.out, con.formatter.FormatValues(values))
}

// cmdSet handles the set command.
func (con *Console) cmdSet(arg string) {
	if arg == "" {
		fmt.Fprintln(con.out, "Usage: set <device>.<property>.<member>[;<member>...]=<value>[;<value>...]")
		fmt.Fprintln(con.out, "  Example: set Telescope.EQUATORIAL_EOD_COORD.RA;DEC=10:30:00;-5")
		return
	}

	a, err := inspect.ParseAssignment(arg)
	if err != nil {
		fmt.Fprintf(con.out, "Error: %v\n", err)
		return
	}
	if err := con.inspector.Set(con.client, a); err != nil {
		fmt.Fprintf(con.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(con.out, "Sent %s.%s\n", a.Device, a.Property)
}

// cmdWatch handles the watch command.
func (con *Console) cmdWatch(arg string) {
	if arg == "" {
		watches := con.client.Watches()
		if len(watches) == 0 {
			fmt.Fprintln(con.out, "Watching all devices")
			return
		}
		for _, w := range watches {
			if len(w.Properties) == 0 {
				fmt.Fprintf(con.out, "  %s (all properties)\n", w.Device)
			} else {
				fmt.Fprintf(con.out, "  %s: %s\n", w.Device, strings.Join(w.Properties, ", "))
			}
		}
		return
	}

	path, err := inspect.ParsePath(arg)
	if err != nil || path.Device == inspect.Wildcard {
		fmt.Fprintln(con.out, "Usage: watch <device>[.<property>]")
		return
	}
	if path.Property == inspect.Wildcard {
		err = con.client.WatchDevice(path.Device)
	} else {
		err = con.client.WatchProperty(path.Device, path.Property)
	}
	if err != nil {
		fmt.Fprintf(con.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(con.out, "Watching %s\n", target(path.Device, propertyOf(path)))
}

// cmdBLOB handles the blob command.
func (con *Console) cmdBLOB(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(con.out, "Usage: blob <never|also|only> <device>[.<property>]")
		return
	}

	mode, err := wire.ParseBLOBHandling(args[0])
	if err != nil {
		fmt.Fprintf(con.out, "Error: %v\n", err)
		return
	}
	path, err := inspect.ParsePath(strings.Join(args[1:], " "))
	if err != nil || path.Device == inspect.Wildcard {
		fmt.Fprintln(con.out, "Usage: blob <never|also|only> <device>[.<property>]")
		return
	}
	if err := con.client.SetBLOBMode(mode, path.Device, propertyOf(path)); err != nil {
		fmt.Fprintf(con.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(con.out, "BLOB mode %s for %s\n", mode, target(path.Device, propertyOf(path)))
}

// cmdDriverConnection handles the enable and disable commands.
func (con *Console) cmdDriverConnection(active bool, device string) {
	if device == "" {
		fmt.Fprintln(con.out, "Usage: enable|disable <device>")
		return
	}
	if err := con.client.SetDriverConnection(active, device); err != nil {
		fmt.Fprintf(con.out, "Error: %v\n", err)
		return
	}
	verb := "Disconnecting"
	if active {
		verb = "Connecting"
	}
	fmt.Fprintf(con.out, "%s %s...\n", verb, device)
}

// cmdMessages handles the messages command.
func (con *Console) cmdMessages(device string) {
	devices := con.client.Devices()
	if device != "" {
		d, err := con.client.Device(device)
		if err != nil {
			fmt.Fprintf(con.out, "Error: %v\n", err)
			return
		}
		devices = []*model.Device{d}
	}

	count := 0
	for _, d := range devices {
		for _, msg := range d.Messages() {
			fmt.Fprintln(con.out, con.formatter.FormatMessage(msg))
			count++
		}
	}
	if count == 0 {
		fmt.Fprintln(con.out, "No messages")
	}
}

// cmdDiscover handles the discover command.
func (con *Console) cmdDiscover(ctx context.Context) {
	if con.browser == nil {
		fmt.Fprintln(con.out, "Discovery is not available")
		return
	}

	fmt.Fprintln(con.out, "Browsing for INDI servers...")
	discoverCtx, cancel := context.WithTimeout(ctx, DiscoverTimeout)
	servers, err := con.browser.FindAll(discoverCtx)
	cancel()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintf(con.out, "Discovery error: %v\n", err)
		return
	}
	if len(servers) == 0 {
		fmt.Fprintln(con.out, "No INDI servers found")
		return
	}

	fmt.Fprintf(con.out, "Found %d server(s):\n", len(servers))
	for idx, s := range servers {
		fmt.Fprintf(con.out, "  %d. %s (%s", idx+1, s.Instance, s.Address())
		if s.Version != "" {
			fmt.Fprintf(con.out, ", protocol %s", s.Version)
		}
		fmt.Fprintln(con.out, ")")
	}
}

// cmdStatus handles the status command.
func (con *Console) cmdStatus() {
	fmt.Fprintln(con.out, "\nClient Status")
	fmt.Fprintln(con.out, "-------------------------------------------")
	fmt.Fprintf(con.out, "  Server:         %s\n", con.client.Address())
	fmt.Fprintf(con.out, "  Session:        %s\n", con.manager.State())
	if id := con.client.ConnectionID(); id != "" {
		fmt.Fprintf(con.out, "  Connection ID:  %s\n", id)
	}
	if !con.client.IsConnected() {
		fmt.Fprintf(con.out, "  Last exit code: %d\n", con.client.ExitCode())
	}
	if n := con.manager.BackoffAttempts(); n > 0 {
		fmt.Fprintf(con.out, "  Reconnects:     %d attempt(s)\n", n)
	}
	fmt.Fprintf(con.out, "  Devices:        %d\n", len(con.client.Devices()))
	fmt.Fprintf(con.out, "  Watches:        %d\n", len(con.client.Watches()))
	for _, b := range con.client.BLOBModes() {
		fmt.Fprintf(con.out, "  BLOB:           %s %s\n", target(b.Device, b.Property), b.Mode)
	}
}

// propertyOf returns the property named by path, or "" for a wildcard.
func propertyOf(path *inspect.Path) string {
	if path.Property == inspect.Wildcard {
		return ""
	}
	return path.Property
}

func target(device, property string) string {
	if property == "" {
		return device
	}
	return device + "." + property
}
