// Package inspect renders and edits the client's device model for humans.
//
// Properties are addressed the way the INDI command line tools do it:
//
//	DEVICE.PROPERTY.MEMBER
//
// Any part may be "*", and trailing parts may be left out, so "CCD Simulator"
// and "CCD Simulator.*.*" select the same members. Assignments name one
// property and one or more members:
//
//	Telescope.EQUATORIAL_EOD_COORD.RA;DEC=10:30:00;-5
package inspect

import (
	"errors"
	"fmt"
	"strings"
)

// Path errors.
var (
	ErrEmptyPath         = errors.New("empty path")
	ErrInvalidPath       = errors.New("invalid path format")
	ErrInvalidAssignment = errors.New("invalid assignment")
)

// Wildcard matches any name.
const Wildcard = "*"

// Path selects members of the device model.
type Path struct {
	// Device is the device name or Wildcard.
	Device string

	// Property is the property name or Wildcard.
	Property string

	// Member is the member name or Wildcard.
	Member string

	// Raw stores the original input string.
	Raw string
}

// ParsePath parses DEVICE[.PROPERTY[.MEMBER]]. Missing parts become
// Wildcard.
func ParsePath(input string) (*Path, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyPath
	}

	parts := strings.SplitN(input, ".", 3)
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, input)
		}
	}
	for len(parts) < 3 {
		parts = append(parts, Wildcard)
	}

	return &Path{
		Device:   parts[0],
		Property: parts[1],
		Member:   parts[2],
		Raw:      input,
	}, nil
}

// MatchDevice reports whether the path selects device.
func (p *Path) MatchDevice(device string) bool {
	return match(p.Device, device)
}

// MatchProperty reports whether the path selects property.
func (p *Path) MatchProperty(property string) bool {
	return match(p.Property, property)
}

// MatchMember reports whether the path selects member.
func (p *Path) MatchMember(member string) bool {
	return match(p.Member, member)
}

// IsExact reports whether the path names exactly one member.
func (p *Path) IsExact() bool {
	return p.Device != Wildcard && p.Property != Wildcard && p.Member != Wildcard
}

// String returns the normalized DEVICE.PROPERTY.MEMBER form.
func (p *Path) String() string {
	return p.Device + "." + p.Property + "." + p.Member
}

func match(pattern, name string) bool {
	return pattern == Wildcard || pattern == name
}

// Assignment is a parsed DEVICE.PROPERTY.M1[;M2...]=V1[;V2...] expression.
type Assignment struct {
	Device   string
	Property string

	// Members and Values are parallel.
	Members []string
	Values  []string
}

// ParseAssignment parses an assignment. Wildcards are not allowed and the
// number of values must match the number of members.
func ParseAssignment(input string) (*Assignment, error) {
	lhs, rhs, ok := strings.Cut(strings.TrimSpace(input), "=")
	if !ok {
		return nil, fmt.Errorf("%w: missing '=' in %q", ErrInvalidAssignment, input)
	}

	parts := strings.SplitN(lhs, ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: want DEVICE.PROPERTY.MEMBER, got %q", ErrInvalidAssignment, lhs)
	}
	a := &Assignment{
		Device:   strings.TrimSpace(parts[0]),
		Property: strings.TrimSpace(parts[1]),
		Members:  strings.Split(parts[2], ";"),
		Values:   strings.Split(rhs, ";"),
	}
	if a.Device == "" || a.Property == "" || a.Device == Wildcard || a.Property == Wildcard {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAssignment, lhs)
	}
	for i, m := range a.Members {
		a.Members[i] = strings.TrimSpace(m)
		if a.Members[i] == "" || a.Members[i] == Wildcard {
			return nil, fmt.Errorf("%w: bad member in %q", ErrInvalidAssignment, lhs)
		}
	}
	if len(a.Members) != len(a.Values) {
		return nil, fmt.Errorf("%w: %d members but %d values", ErrInvalidAssignment, len(a.Members), len(a.Values))
	}
	return a, nil
}
