package model

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/indiproto/indi-go/pkg/wire"
)

// Property errors.
var (
	ErrTypeMismatch  = errors.New("property type mismatch")
	ErrInvalidValue  = errors.New("invalid property value")
	ErrUnknownMember = errors.New("unknown property member")
	ErrMissingName   = errors.New("missing name attribute")
)

// Member is one element of a property vector. Only the fields matching the
// vector type are meaningful.
type Member struct {
	Name  string
	Label string

	// Text
	Text string

	// Number
	Number float64
	Format string
	Min    float64
	Max    float64
	Step   float64

	// Switch
	Switch wire.SwitchState

	// Light
	Light wire.PropertyState

	// BLOB. Data holds the decoded payload, Size the size announced by the
	// server (uncompressed size for compressed formats).
	BLOBFormat string
	BLOBSize   int
	Data       []byte
}

// Property is a typed vector of members belonging to a device.
type Property struct {
	mu sync.RWMutex

	device     *Device
	deviceName string
	name       string
	typ        wire.PropertyType
	label      string
	group      string
	state      wire.PropertyState
	perm       wire.Permission
	rule       wire.SwitchRule
	timeout    float64
	timestamp  time.Time

	members []Member
	index   map[string]int
}

// NewProperty creates an empty property. Members are added with AddMember.
func NewProperty(device, name string, typ wire.PropertyType) *Property {
	return &Property{
		deviceName: device,
		name:       name,
		typ:        typ,
		perm:       wire.PermRO,
		rule:       wire.RuleAnyOfMany,
		index:      make(map[string]int),
	}
}

// ParseDefinition builds a property from a def*Vector element.
func ParseDefinition(el *wire.Element) (*Property, error) {
	typ, ok := wire.VectorType(el.Tag())
	if !ok || el.Category() != wire.CategoryDefinition {
		return nil, fmt.Errorf("%w: %s is not a definition", ErrTypeMismatch, el.Tag())
	}
	name := el.Name()
	if name == "" {
		return nil, ErrMissingName
	}

	p := NewProperty(el.Device(), name, typ)
	p.label = el.Attr(wire.AttrLabel)
	if p.label == "" {
		p.label = name
	}
	p.group = el.Attr(wire.AttrGroup)

	var err error
	if p.state, err = parseState(el); err != nil {
		return nil, err
	}
	if p.perm, err = wire.ParsePermission(el.Attr(wire.AttrPerm)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if typ == wire.PropertyLight {
		p.perm = wire.PermRO
	}
	if typ == wire.PropertySwitch {
		if p.rule, err = wire.ParseSwitchRule(el.Attr(wire.AttrRule)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
	}
	if p.timeout, err = parseOptionalFloat(el, wire.AttrTimeout, 0); err != nil {
		return nil, err
	}
	p.timestamp = parseTimestamp(el)

	want := "def" + typ.String()
	for _, child := range el.Children {
		if child.Tag() != want {
			return nil, fmt.Errorf("%w: unexpected %s in %s", ErrInvalidValue, child.Tag(), el.Tag())
		}
		m, err := parseDefMember(typ, child)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, child.Name(), err)
		}
		if err := p.AddMember(m); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func parseDefMember(typ wire.PropertyType, el *wire.Element) (Member, error) {
	m := Member{Name: el.Name(), Label: el.Attr(wire.AttrLabel)}
	if m.Name == "" {
		return m, ErrMissingName
	}
	if m.Label == "" {
		m.Label = m.Name
	}

	var err error
	switch typ {
	case wire.PropertyText:
		m.Text = el.Value()
	case wire.PropertyNumber:
		m.Format = el.Attr(wire.AttrFormat)
		if m.Number, err = ParseNumber(el.Value()); err != nil {
			return m, err
		}
		if m.Min, err = parseOptionalFloat(el, wire.AttrMin, 0); err != nil {
			return m, err
		}
		if m.Max, err = parseOptionalFloat(el, wire.AttrMax, 0); err != nil {
			return m, err
		}
		if m.Step, err = parseOptionalFloat(el, wire.AttrStep, 0); err != nil {
			return m, err
		}
	case wire.PropertySwitch:
		if m.Switch, err = wire.ParseSwitchState(el.Value()); err != nil {
			return m, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
	case wire.PropertyLight:
		if m.Light, err = wire.ParsePropertyState(el.Value()); err != nil {
			return m, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
	case wire.PropertyBLOB:
		m.BLOBFormat = el.Attr(wire.AttrFormat)
	}
	return m, nil
}

// AddMember appends a member. Member names must be unique within the vector.
func (p *Property) AddMember(m Member) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.index[m.Name]; exists {
		return fmt.Errorf("%w: duplicate member %q", ErrInvalidValue, m.Name)
	}
	p.index[m.Name] = len(p.members)
	p.members = append(p.members, m)
	return nil
}

type memberUpdate struct {
	idx    int
	member Member
}

// Apply merges a set*Vector element into the property. The element is fully
// validated before anything is changed, so a failed update leaves the
// property untouched.
func (p *Property) Apply(el *wire.Element) error {
	typ, ok := wire.VectorType(el.Tag())
	if !ok || el.Category() != wire.CategoryUpdate {
		return fmt.Errorf("%w: %s is not an update", ErrTypeMismatch, el.Tag())
	}
	if typ != p.typ {
		return fmt.Errorf("%w: %s applied to %s property %s", ErrTypeMismatch, el.Tag(), p.typ, p.name)
	}

	_, hasState := el.LookupAttr(wire.AttrState)
	state, err := parseState(el)
	if err != nil {
		return err
	}
	_, hasTimeout := el.LookupAttr(wire.AttrTimeout)
	timeout, err := parseOptionalFloat(el, wire.AttrTimeout, 0)
	if err != nil {
		return err
	}
	timestamp := parseTimestamp(el)

	p.mu.RLock()
	updates := make([]memberUpdate, 0, len(el.Children))
	want := "one" + typ.String()
	for _, child := range el.Children {
		if child.Tag() != want {
			p.mu.RUnlock()
			return fmt.Errorf("%w: unexpected %s in %s", ErrInvalidValue, child.Tag(), el.Tag())
		}
		idx, found := p.index[child.Name()]
		if !found {
			p.mu.RUnlock()
			return fmt.Errorf("%w: %s.%s", ErrUnknownMember, p.name, child.Name())
		}
		m, err := applyOneMember(typ, p.members[idx], child)
		if err != nil {
			p.mu.RUnlock()
			return fmt.Errorf("%s.%s: %w", p.name, child.Name(), err)
		}
		updates = append(updates, memberUpdate{idx: idx, member: m})
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range updates {
		p.members[u.idx] = u.member
	}
	if hasState {
		p.state = state
	}
	if hasTimeout {
		p.timeout = timeout
	}
	p.timestamp = timestamp
	return nil
}

func applyOneMember(typ wire.PropertyType, m Member, el *wire.Element) (Member, error) {
	var err error
	switch typ {
	case wire.PropertyText:
		m.Text = el.Value()
	case wire.PropertyNumber:
		if m.Number, err = ParseNumber(el.Value()); err != nil {
			return m, err
		}
		if m.Min, err = parseOptionalFloat(el, wire.AttrMin, m.Min); err != nil {
			return m, err
		}
		if m.Max, err = parseOptionalFloat(el, wire.AttrMax, m.Max); err != nil {
			return m, err
		}
		if m.Step, err = parseOptionalFloat(el, wire.AttrStep, m.Step); err != nil {
			return m, err
		}
	case wire.PropertySwitch:
		if m.Switch, err = wire.ParseSwitchState(el.Value()); err != nil {
			return m, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
	case wire.PropertyLight:
		if m.Light, err = wire.ParsePropertyState(el.Value()); err != nil {
			return m, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
	case wire.PropertyBLOB:
		size := 0
		if s := el.Attr(wire.AttrSize); s != "" {
			if size, err = strconv.Atoi(strings.TrimSpace(s)); err != nil {
				return m, fmt.Errorf("%w: size %q", ErrInvalidValue, s)
			}
		}
		data, err := decodeBLOB(el.Text)
		if err != nil {
			return m, err
		}
		m.BLOBSize = size
		m.BLOBFormat = el.Attr(wire.AttrFormat)
		m.Data = data
	}
	return m, nil
}

// decodeBLOB decodes base64 payload that may be wrapped across lines.
func decodeBLOB(text string) ([]byte, error) {
	compact := strings.Join(strings.Fields(text), "")
	if compact == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("%w: BLOB payload: %v", ErrInvalidValue, err)
	}
	return data, nil
}

func parseState(el *wire.Element) (wire.PropertyState, error) {
	s, ok := el.LookupAttr(wire.AttrState)
	if !ok {
		return wire.StateIdle, nil
	}
	state, err := wire.ParsePropertyState(s)
	if err != nil {
		return wire.StateIdle, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return state, nil
}

func parseOptionalFloat(el *wire.Element, attr string, def float64) (float64, error) {
	s, ok := el.LookupAttr(attr)
	if !ok || strings.TrimSpace(s) == "" {
		return def, nil
	}
	v, err := ParseNumber(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", attr, err)
	}
	return v, nil
}

func parseTimestamp(el *wire.Element) time.Time {
	if ts, err := wire.ParseTimestamp(el.Attr(wire.AttrTimestamp)); err == nil {
		return ts
	}
	return time.Now().UTC()
}

// Device returns the owning device, or nil if the property is not attached.
func (p *Property) Device() *Device {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.device
}

func (p *Property) attach(d *Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.device = d
	p.deviceName = d.Name()
}

// DeviceName returns the name of the owning device.
func (p *Property) DeviceName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deviceName
}

// Name returns the property name.
func (p *Property) Name() string {
	return p.name
}

// Type returns the vector type.
func (p *Property) Type() wire.PropertyType {
	return p.typ
}

// Label returns the GUI label.
func (p *Property) Label() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.label
}

// Group returns the GUI group.
func (p *Property) Group() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.group
}

// State returns the current vector state.
func (p *Property) State() wire.PropertyState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Permission returns the client permission.
func (p *Property) Permission() wire.Permission {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.perm
}

// Rule returns the switch rule. Meaningless for non-switch vectors.
func (p *Property) Rule() wire.SwitchRule {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rule
}

// Timeout returns the worst-case time in seconds to apply a new value.
func (p *Property) Timeout() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.timeout
}

// Timestamp returns the time of the last definition or update.
func (p *Property) Timestamp() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.timestamp
}

// Members returns a snapshot of all members in definition order.
func (p *Property) Members() []Member {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Member, len(p.members))
	copy(out, p.members)
	return out
}

// Member returns the named member.
func (p *Property) Member(name string) (Member, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx, ok := p.index[name]
	if !ok {
		return Member{}, false
	}
	return p.members[idx], true
}

// ActiveSwitch returns the name of the first switch that is On.
func (p *Property) ActiveSwitch() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.typ != wire.PropertySwitch {
		return "", false
	}
	for _, m := range p.members {
		if m.Switch == wire.SwitchOn {
			return m.Name, true
		}
	}
	return "", false
}
