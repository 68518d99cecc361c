package model

// Mediator receives notifications about the remote device model and the
// server connection. Callbacks are invoked synchronously from the stream
// listener goroutine, in stream order. ServerConnected is always the first
// callback of a session. Implementations must return promptly. A callback
// may call Disconnect on the client, which then ends the session once the
// callback returns; it must not call Connect.
type Mediator interface {
	// NewDevice is called when a previously unknown device is first defined.
	NewDevice(d *Device)

	// RemoveDevice is called after a device was deleted as a whole.
	RemoveDevice(d *Device)

	// NewProperty is called when a property is defined or redefined.
	NewProperty(p *Property)

	// UpdateProperty is called after new values were applied to a property.
	UpdateProperty(p *Property)

	// RemoveProperty is called after a single property was deleted.
	RemoveProperty(p *Property)

	// NewMessage is called for every message. d is nil for server-wide messages.
	NewMessage(d *Device, msg Message)

	// ServerConnected is called once the session is established.
	ServerConnected()

	// ServerDisconnected is called exactly once per session with the exit code.
	ServerDisconnected(exitCode int)
}

// NoopMediator ignores every notification. Embed it to implement only the
// callbacks of interest.
type NoopMediator struct{}

var _ Mediator = NoopMediator{}

func (NoopMediator) NewDevice(*Device)           {}
func (NoopMediator) RemoveDevice(*Device)        {}
func (NoopMediator) NewProperty(*Property)       {}
func (NoopMediator) UpdateProperty(*Property)    {}
func (NoopMediator) RemoveProperty(*Property)    {}
func (NoopMediator) NewMessage(*Device, Message) {}
func (NoopMediator) ServerConnected()            {}
func (NoopMediator) ServerDisconnected(int)      {}
