package inspect

import (
	"fmt"

	"github.com/indiproto/indi-go/pkg/model"
	"github.com/indiproto/indi-go/pkg/wire"
)

// Source provides the device model to inspect.
type Source interface {
	Devices() []*model.Device
}

// Sender submits new property values.
type Sender interface {
	SendNewText(device, property string, values map[string]string) error
	SendNewNumber(device, property string, values map[string]float64) error
	SendNewSwitch(device, property string, values map[string]wire.SwitchState) error
}

// Value is one member value selected by a Path.
type Value struct {
	Device   string
	Property string
	Member   string
	Type     wire.PropertyType
	State    wire.PropertyState
	Value    string
}

// Inspector reads and writes the device model by path.
type Inspector struct {
	source    Source
	formatter *Formatter
}

// NewInspector creates an inspector over source.
func NewInspector(source Source) *Inspector {
	return &Inspector{
		source:    source,
		formatter: NewFormatter(),
	}
}

// Formatter returns the formatter used to render values.
func (i *Inspector) Formatter() *Formatter {
	return i.formatter
}

// Get returns every member selected by path, in model order.
func (i *Inspector) Get(path *Path) []Value {
	var values []Value
	for _, d := range i.source.Devices() {
		if !path.MatchDevice(d.Name()) {
			continue
		}
		for _, p := range d.Properties() {
			if !path.MatchProperty(p.Name()) {
				continue
			}
			for _, m := range p.Members() {
				if !path.MatchMember(m.Name) {
					continue
				}
				values = append(values, Value{
					Device:   d.Name(),
					Property: p.Name(),
					Member:   m.Name,
					Type:     p.Type(),
					State:    p.State(),
					Value:    i.formatter.FormatMember(p.Type(), m),
				})
			}
		}
	}
	return values
}

// Property finds a property by name.
func (i *Inspector) Property(device, property string) (*model.Property, error) {
	for _, d := range i.source.Devices() {
		if d.Name() != device {
			continue
		}
		p := d.Property(property)
		if p == nil {
			return nil, fmt.Errorf("%w: %s.%s", model.ErrPropertyNotFound, device, property)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", model.ErrDeviceNotFound, device)
}

// Set converts the assignment values according to the property type and
// submits them through sender.
func (i *Inspector) Set(sender Sender, a *Assignment) error {
	p, err := i.Property(a.Device, a.Property)
	if err != nil {
		return err
	}

	switch p.Type() {
	case wire.PropertyText:
		values := make(map[string]string, len(a.Members))
		for n, m := range a.Members {
			values[m] = a.Values[n]
		}
		return sender.SendNewText(a.Device, a.Property, values)

	case wire.PropertyNumber:
		values := make(map[string]float64, len(a.Members))
		for n, m := range a.Members {
			v, err := model.ParseNumber(a.Values[n])
			if err != nil {
				return fmt.Errorf("%s: %w", m, err)
			}
			values[m] = v
		}
		return sender.SendNewNumber(a.Device, a.Property, values)

	case wire.PropertySwitch:
		values := make(map[string]wire.SwitchState, len(a.Members))
		for n, m := range a.Members {
			v, err := wire.ParseSwitchState(a.Values[n])
			if err != nil {
				return fmt.Errorf("%s: %w", m, err)
			}
			values[m] = v
		}
		return sender.SendNewSwitch(a.Device, a.Property, values)

	default:
		return fmt.Errorf("%w: cannot set %s property %s.%s", model.ErrTypeMismatch, p.Type(), a.Device, a.Property)
	}
}
