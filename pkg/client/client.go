package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/indiproto/indi-go/pkg/log"
	"github.com/indiproto/indi-go/pkg/model"
	"github.com/indiproto/indi-go/pkg/subscription"
	"github.com/indiproto/indi-go/pkg/transport"
	"github.com/indiproto/indi-go/pkg/wire"
)

// Names of the standard CONNECTION switch vector every driver defines.
const (
	ConnectionProperty = "CONNECTION"
	ConnectSwitch      = "CONNECT"
	DisconnectSwitch   = "DISCONNECT"
)

// Client is an INDI client. It is safe for concurrent use.
type Client struct {
	mu     sync.RWMutex
	config Config

	mediator   model.Mediator
	logger     *slog.Logger
	plog       log.Logger
	conn       *transport.Conn
	devices    *model.Registry
	watch      *subscription.WatchList
	blobs      *subscription.BLOBModes
	dispatcher *Dispatcher

	resetOnDisconnect bool
	errorHandler      func(error)
}

// New creates a disconnected client. A nil mediator ignores all events.
func New(config Config, mediator model.Mediator) (*Client, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if mediator == nil {
		mediator = model.NoopMediator{}
	}

	c := &Client{
		config:   config,
		mediator: mediator,
		logger:   config.Logger,
		plog:     log.OrNoop(config.ProtocolLogger),
		devices:  model.NewRegistry(mediator),
		watch:    subscription.NewWatchList(),
		blobs:    subscription.NewBLOBModes(),

		resetOnDisconnect: config.ResetOnDisconnect,
		errorHandler:      config.ErrorHandler,
	}
	c.dispatcher = NewDispatcher(c.devices, c.watch, c.blobs, mediator, c.SendCommand, c.logger)
	c.conn = transport.NewConn(transport.Config{
		ConnectTimeout: config.ConnectTimeout,
		WriteTimeout:   config.WriteTimeout,
		Logger:         c.logger,
		ProtocolLogger: config.ProtocolLogger,
	}, &session{c: c})
	return c, nil
}

// SetServer changes the server address used by the next Connect.
func (c *Client) SetServer(host string, port int) error {
	if c.IsConnected() {
		return ErrAlreadyConnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.config
	next.Host = host
	next.Port = port
	if err := next.withDefaults().Validate(); err != nil {
		return err
	}
	c.config = next.withDefaults()
	return nil
}

// Address returns the configured server address.
func (c *Client) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Address()
}

// Connect opens a session. It only fails when the server cannot be
// reached or a session is already active.
//
// Before the first element is read, devices from an earlier session are
// discarded, the mediator's ServerConnected fires, getProperties is sent
// for the watch list and BLOB modes are replayed. Connect returns after
// that, so ServerConnected is always the first callback of a session.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx, c.Address())
}

// Disconnect ends the session with exitCode. It is a no-op when not
// connected. Called from a mediator callback it returns at once and the
// session ends, with exitCode, when the callback returns. ServerDisconnected
// must not call Connect.
func (c *Client) Disconnect(exitCode int) error {
	return c.conn.Disconnect(exitCode)
}

// IsConnected reports whether a session is active.
func (c *Client) IsConnected() bool {
	return c.conn.State() == transport.StateConnected
}

// State returns the connection state.
func (c *Client) State() transport.State {
	return c.conn.State()
}

// ExitCode returns the exit code of the last session.
func (c *Client) ExitCode() int {
	return c.conn.ExitCode()
}

// ConnectionID returns the ID of the current or last session.
func (c *Client) ConnectionID() string {
	return c.conn.ConnectionID()
}

// WatchDevice restricts the session to the named devices. On an active
// session the device's properties are requested immediately.
func (c *Client) WatchDevice(device string) error {
	c.watch.WatchDevice(device)
	return c.requestIfConnected(wire.GetProperties{Version: c.protocolVersion(), Device: device})
}

// WatchProperty restricts device to the named properties. On an active
// session the property is requested immediately.
func (c *Client) WatchProperty(device, property string) error {
	c.watch.Watch(device, property)
	return c.requestIfConnected(wire.GetProperties{Version: c.protocolVersion(), Device: device, Name: property})
}

// Watches returns the watch list.
func (c *Client) Watches() []subscription.WatchEntry {
	return c.watch.Entries()
}

// SetBLOBMode records the BLOB policy for device (and property, if not
// empty) and sends enableBLOB on an active session.
func (c *Client) SetBLOBMode(mode wire.BLOBHandling, device, property string) error {
	c.blobs.Set(device, property, mode)
	return c.requestIfConnected(wire.NewEnableBLOB(device, property, mode))
}

// BLOBMode returns the recorded BLOB policy. INDI servers default to
// Never, so that is returned when nothing is recorded.
func (c *Client) BLOBMode(device, property string) wire.BLOBHandling {
	if mode, ok := c.blobs.Lookup(device, property); ok {
		return mode
	}
	return wire.BLOBNever
}

// BLOBModes returns the recorded BLOB policies.
func (c *Client) BLOBModes() []subscription.BLOBEntry {
	return c.blobs.Entries()
}

// Devices returns the known devices in definition order.
func (c *Client) Devices() []*model.Device {
	return c.devices.Devices()
}

// Device returns the named device.
func (c *Client) Device(name string) (*model.Device, error) {
	d := c.devices.Find(name)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	return d, nil
}

// Clear forgets all devices, watches and BLOB modes.
func (c *Client) Clear() {
	c.devices.Clear()
	c.watch.Clear()
	c.blobs.Clear()
}

// SetDriverConnection asks the driver of device to connect to (active) or
// disconnect from its hardware. It does not wait for the driver.
func (c *Client) SetDriverConnection(active bool, device string) error {
	if _, err := c.Device(device); err != nil {
		return err
	}
	values := map[string]wire.SwitchState{
		ConnectSwitch:    wire.SwitchOff,
		DisconnectSwitch: wire.SwitchOn,
	}
	if active {
		values[ConnectSwitch] = wire.SwitchOn
		values[DisconnectSwitch] = wire.SwitchOff
	}
	return c.SendCommand(wire.NewSwitchVector(device, ConnectionProperty, values))
}

// SendNewText sends new values for a text property.
func (c *Client) SendNewText(device, property string, values map[string]string) error {
	if _, err := c.writable(device, property, wire.PropertyText, keys(values)); err != nil {
		return err
	}
	return c.SendCommand(wire.NewTextVector(device, property, values))
}

// SendNewNumber sends new values for a number property.
func (c *Client) SendNewNumber(device, property string, values map[string]float64) error {
	if _, err := c.writable(device, property, wire.PropertyNumber, keys(values)); err != nil {
		return err
	}
	return c.SendCommand(wire.NewNumberVector(device, property, values))
}

// SendNewSwitch sends new states for a switch property.
func (c *Client) SendNewSwitch(device, property string, values map[string]wire.SwitchState) error {
	if _, err := c.writable(device, property, wire.PropertySwitch, keys(values)); err != nil {
		return err
	}
	return c.SendCommand(wire.NewSwitchVector(device, property, values))
}

// SelectSwitch turns member On and every other member of the vector Off.
func (c *Client) SelectSwitch(device, property, member string) error {
	p, err := c.writable(device, property, wire.PropertySwitch, []string{member})
	if err != nil {
		return err
	}
	values := make(map[string]wire.SwitchState)
	for _, m := range p.Members() {
		values[m.Name] = wire.SwitchOff
	}
	values[member] = wire.SwitchOn
	return c.SendCommand(wire.NewSwitchVector(device, property, values))
}

// SendNewBLOB uploads data to a BLOB property member.
func (c *Client) SendNewBLOB(device, property, member, format string, data []byte) error {
	if _, err := c.writable(device, property, wire.PropertyBLOB, []string{member}); err != nil {
		return err
	}
	return c.SendCommand(wire.NewBLOBVector(device, property, map[string]wire.BLOBValue{
		member: {
			Format: format,
			Size:   len(data),
			Data:   base64.StdEncoding.EncodeToString(data),
		},
	}))
}

// SendCommand encodes and sends a command.
func (c *Client) SendCommand(cmd wire.Command) error {
	data, err := wire.Encode(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.CommandTag(), err)
	}
	if _, err := c.SendBytes(data); err != nil {
		return err
	}
	c.logCommand(cmd)
	return nil
}

// SendBytes writes raw bytes to the server. Concurrent calls never
// interleave on the wire.
func (c *Client) SendBytes(data []byte) (int, error) {
	return c.conn.Send(data)
}

// writable checks that device.property exists, has type typ, accepts
// writes and contains all members.
func (c *Client) writable(device, property string, typ wire.PropertyType, members []string) (*model.Property, error) {
	d, err := c.Device(device)
	if err != nil {
		return nil, err
	}
	p := d.Property(property)
	if p == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrPropertyNotFound, device, property)
	}
	if p.Type() != typ {
		return nil, fmt.Errorf("%w: %s.%s is %s, not %s", model.ErrTypeMismatch, device, property, p.Type(), typ)
	}
	if p.Permission() == wire.PermRO {
		return nil, fmt.Errorf("%w: %s.%s", ErrReadOnly, device, property)
	}
	for _, m := range members {
		if _, ok := p.Member(m); !ok {
			return nil, fmt.Errorf("%w: %s.%s.%s", model.ErrUnknownMember, device, property, m)
		}
	}
	return p, nil
}

func (c *Client) protocolVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.ProtocolVersion
}

func (c *Client) requestIfConnected(cmd wire.Command) error {
	if !c.IsConnected() {
		return nil
	}
	err := c.SendCommand(cmd)
	if errors.Is(err, ErrNotConnected) {
		// The session ended between the check and the write; the entry
		// is replayed on the next Connect.
		return nil
	}
	return err
}

// requestProperties sends one getProperties for everything, or one per
// watched device or property.
func (c *Client) requestProperties() error {
	v := c.protocolVersion()
	entries := c.watch.Entries()
	if len(entries) == 0 {
		return c.SendCommand(wire.GetProperties{Version: v})
	}
	for _, e := range entries {
		if len(e.Properties) == 0 {
			if err := c.SendCommand(wire.GetProperties{Version: v, Device: e.Device}); err != nil {
				return err
			}
			continue
		}
		for _, p := range e.Properties {
			if err := c.SendCommand(wire.GetProperties{Version: v, Device: e.Device, Name: p}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) replayBLOBModes() error {
	for _, e := range c.blobs.Entries() {
		if err := c.SendCommand(wire.NewEnableBLOB(e.Device, e.Property, e.Mode)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) logCommand(cmd wire.Command) {
	event := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.conn.ConnectionID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Element:      &log.ElementEvent{Tag: cmd.CommandTag()},
	}
	switch v := cmd.(type) {
	case wire.GetProperties:
		event.Device, event.Property = v.Device, v.Name
	case wire.EnableBLOB:
		event.Device, event.Property = v.Device, v.Name
	case wire.NewVector:
		event.Device, event.Property = v.Device, v.Name
		event.Element.Members = len(v.Members)
	case wire.PingReply:
		event.Category = log.CategoryControl
		event.Element = nil
		event.ControlMsg = &log.ControlMsgEvent{Type: log.ControlMsgPingReply, UID: v.UID}
	}
	c.plog.Log(event)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
