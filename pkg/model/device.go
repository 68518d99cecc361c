package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/indiproto/indi-go/pkg/wire"
)

// Device errors.
var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrPropertyNotFound = errors.New("property not found")
)

// MaxMessages bounds the per-device message log. Older entries are dropped.
const MaxMessages = 256

// Device is a remote driver instance and the properties it exposes.
type Device struct {
	mu sync.RWMutex

	name string

	// mediator is borrowed from the application and never closed here.
	mediator Mediator

	properties map[string]*Property
	order      []string

	messages []Message
}

// NewDevice creates an empty device. A nil mediator is replaced by NoopMediator.
func NewDevice(name string, mediator Mediator) *Device {
	if mediator == nil {
		mediator = NoopMediator{}
	}
	return &Device{
		name:       name,
		mediator:   mediator,
		properties: make(map[string]*Property),
	}
}

// Name returns the unique device name.
func (d *Device) Name() string {
	return d.name
}

// Mediator returns the mediator the device reports to.
func (d *Device) Mediator() Mediator {
	return d.mediator
}

// DefineProperty stores p, replacing any previous definition with the same
// name, and notifies the mediator. It reports whether a definition was replaced.
func (d *Device) DefineProperty(p *Property) bool {
	p.attach(d)

	d.mu.Lock()
	_, replaced := d.properties[p.Name()]
	d.properties[p.Name()] = p
	if !replaced {
		d.order = append(d.order, p.Name())
	}
	d.mu.Unlock()

	d.mediator.NewProperty(p)
	return replaced
}

// ApplyUpdate applies a set*Vector element to the named property and
// notifies the mediator.
func (d *Device) ApplyUpdate(el *wire.Element) (*Property, error) {
	p := d.Property(el.Name())
	if p == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrPropertyNotFound, d.name, el.Name())
	}
	if err := p.Apply(el); err != nil {
		return p, err
	}
	d.mediator.UpdateProperty(p)
	return p, nil
}

// RemoveProperty deletes the named property and notifies the mediator.
func (d *Device) RemoveProperty(name string) (*Property, error) {
	d.mu.Lock()
	p, ok := d.properties[name]
	if !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s.%s", ErrPropertyNotFound, d.name, name)
	}
	delete(d.properties, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.mu.Unlock()

	d.mediator.RemoveProperty(p)
	return p, nil
}

// AddMessage appends msg to the message log and notifies the mediator.
func (d *Device) AddMessage(msg Message) {
	d.mu.Lock()
	d.messages = append(d.messages, msg)
	if n := len(d.messages); n > MaxMessages {
		d.messages = append([]Message(nil), d.messages[n-MaxMessages:]...)
	}
	d.mu.Unlock()

	d.mediator.NewMessage(d, msg)
}

// Property returns the named property or nil.
func (d *Device) Property(name string) *Property {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.properties[name]
}

// Properties returns all properties in definition order.
func (d *Device) Properties() []*Property {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Property, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.properties[name])
	}
	return out
}

// PropertyCount returns the number of defined properties.
func (d *Device) PropertyCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.properties)
}

// Messages returns a copy of the message log, oldest first.
func (d *Device) Messages() []Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Message, len(d.messages))
	copy(out, d.messages)
	return out
}

// LastMessage returns the most recent message.
func (d *Device) LastMessage() (Message, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.messages) == 0 {
		return Message{}, false
	}
	return d.messages[len(d.messages)-1], true
}
