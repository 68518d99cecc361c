package wire

import (
	"fmt"
	"strings"
)

// PropertyType identifies the value family of a property vector.
type PropertyType uint8

const (
	// PropertyText holds free-form strings.
	PropertyText PropertyType = iota

	// PropertyNumber holds floating point numbers.
	PropertyNumber

	// PropertySwitch holds On/Off switches.
	PropertySwitch

	// PropertyLight holds read-only status lights.
	PropertyLight

	// PropertyBLOB holds binary attachments.
	PropertyBLOB
)

// String returns the INDI name of the property type.
func (t PropertyType) String() string {
	switch t {
	case PropertyText:
		return "Text"
	case PropertyNumber:
		return "Number"
	case PropertySwitch:
		return "Switch"
	case PropertyLight:
		return "Light"
	case PropertyBLOB:
		return "BLOB"
	default:
		return "Unknown"
	}
}

// PropertyState is the state of a property vector.
type PropertyState uint8

const (
	StateIdle PropertyState = iota
	StateOk
	StateBusy
	StateAlert
)

// String returns the wire representation of the state.
func (s PropertyState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOk:
		return "Ok"
	case StateBusy:
		return "Busy"
	case StateAlert:
		return "Alert"
	default:
		return "Unknown"
	}
}

// ParsePropertyState parses a state or light value ("Idle", "Ok", "Busy", "Alert").
func ParsePropertyState(s string) (PropertyState, error) {
	switch strings.TrimSpace(s) {
	case "Idle":
		return StateIdle, nil
	case "Ok":
		return StateOk, nil
	case "Busy":
		return StateBusy, nil
	case "Alert":
		return StateAlert, nil
	default:
		return StateIdle, fmt.Errorf("invalid property state %q", s)
	}
}

// SwitchState is the value of a single switch.
type SwitchState uint8

const (
	SwitchOff SwitchState = iota
	SwitchOn
)

// String returns "On" or "Off".
func (s SwitchState) String() string {
	if s == SwitchOn {
		return "On"
	}
	return "Off"
}

// ParseSwitchState parses "On" or "Off".
func ParseSwitchState(s string) (SwitchState, error) {
	switch strings.TrimSpace(s) {
	case "On":
		return SwitchOn, nil
	case "Off":
		return SwitchOff, nil
	default:
		return SwitchOff, fmt.Errorf("invalid switch state %q", s)
	}
}

// SwitchRule constrains how many switches of a vector may be On.
type SwitchRule uint8

const (
	RuleOneOfMany SwitchRule = iota
	RuleAtMostOne
	RuleAnyOfMany
)

// String returns the wire representation of the rule.
func (r SwitchRule) String() string {
	switch r {
	case RuleOneOfMany:
		return "OneOfMany"
	case RuleAtMostOne:
		return "AtMostOne"
	case RuleAnyOfMany:
		return "AnyOfMany"
	default:
		return "Unknown"
	}
}

// ParseSwitchRule parses a switch rule. An empty string yields AnyOfMany.
func ParseSwitchRule(s string) (SwitchRule, error) {
	switch strings.TrimSpace(s) {
	case "OneOfMany":
		return RuleOneOfMany, nil
	case "AtMostOne":
		return RuleAtMostOne, nil
	case "AnyOfMany", "":
		return RuleAnyOfMany, nil
	default:
		return RuleAnyOfMany, fmt.Errorf("invalid switch rule %q", s)
	}
}

// Permission is the client access mode of a property.
type Permission uint8

const (
	PermRO Permission = iota
	PermWO
	PermRW
)

// String returns the wire representation of the permission.
func (p Permission) String() string {
	switch p {
	case PermRO:
		return "ro"
	case PermWO:
		return "wo"
	case PermRW:
		return "rw"
	default:
		return "unknown"
	}
}

// ParsePermission parses "ro", "wo" or "rw". An empty string yields ro.
func ParsePermission(s string) (Permission, error) {
	switch strings.TrimSpace(s) {
	case "ro", "":
		return PermRO, nil
	case "wo":
		return PermWO, nil
	case "rw":
		return PermRW, nil
	default:
		return PermRO, fmt.Errorf("invalid permission %q", s)
	}
}

// BLOBHandling is the delivery mode for binary attachments.
type BLOBHandling uint8

const (
	// BLOBNever disables BLOB delivery; only the other property types are sent.
	BLOBNever BLOBHandling = iota

	// BLOBAlso delivers BLOBs interleaved with all other traffic.
	BLOBAlso

	// BLOBOnly delivers BLOBs exclusively.
	BLOBOnly
)

// String returns the enableBLOB body for the mode.
func (b BLOBHandling) String() string {
	switch b {
	case BLOBNever:
		return "Never"
	case BLOBAlso:
		return "Also"
	case BLOBOnly:
		return "Only"
	default:
		return "Unknown"
	}
}

// ParseBLOBHandling parses "Never", "Also" or "Only" (case-insensitive).
func ParseBLOBHandling(s string) (BLOBHandling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never":
		return BLOBNever, nil
	case "also":
		return BLOBAlso, nil
	case "only":
		return BLOBOnly, nil
	default:
		return BLOBNever, fmt.Errorf("invalid BLOB handling %q", s)
	}
}
