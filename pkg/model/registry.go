package model

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateDevice is returned by Registry.Add for a name already present.
var ErrDuplicateDevice = errors.New("duplicate device")

// Registry is the set of known devices, keyed by name. Devices() returns
// them in insertion order; callers should not rely on that order beyond a
// single session.
type Registry struct {
	mu sync.RWMutex

	mediator Mediator
	devices  map[string]*Device
	order    []string
}

// NewRegistry creates an empty registry. Devices it creates report to mediator.
func NewRegistry(mediator Mediator) *Registry {
	if mediator == nil {
		mediator = NoopMediator{}
	}
	return &Registry{
		mediator: mediator,
		devices:  make(map[string]*Device),
	}
}

// Add creates and stores a new device. It fails with ErrDuplicateDevice if
// the name is taken; the existing device is left untouched.
func (r *Registry) Add(name string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, name)
	}
	d := NewDevice(name, r.mediator)
	r.devices[name] = d
	r.order = append(r.order, name)
	return d, nil
}

// FindOrAdd returns the named device, creating it if needed. created is
// true when a new device was stored.
func (r *Registry) FindOrAdd(name string) (d *Device, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[name]; ok {
		return d, false
	}
	d = NewDevice(name, r.mediator)
	r.devices[name] = d
	r.order = append(r.order, name)
	return d, true
}

// Find returns the named device or nil.
func (r *Registry) Find(name string) *Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices[name]
}

// Remove deletes the named device. It reports whether the device existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[name]; !ok {
		return false
	}
	delete(r.devices, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every device.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[string]*Device)
	r.order = nil
}

// Devices returns a snapshot of all devices in insertion order.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.devices[name])
	}
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
