package log

import (
	"time"
)

// FileExtension is the conventional extension of capture files.
const FileExtension = ".ilog"

// MaxFrameData bounds the bytes kept per FrameEvent. BLOB traffic can be
// many megabytes per element.
const MaxFrameData = 64 * 1024

// Event represents a protocol event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the session (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates data flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the server address (host:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Device is the INDI device the event refers to, if any.
	Device string `cbor:"7,keyasint,omitempty"`

	// Property is the INDI property the event refers to, if any.
	Property string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Element     *ElementEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the client captured the event.
type Layer uint8

const (
	// LayerTransport is the socket (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the XML element layer.
	LayerWire Layer = 1
	// LayerClient is the dispatcher and session layer.
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryControl Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a raw chunk at the transport layer.
type FrameEvent struct {
	// Size is the chunk size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes, truncated to MaxFrameData.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent copies data into a FrameEvent, truncating large chunks.
func NewFrameEvent(data []byte) *FrameEvent {
	f := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameData {
		data = data[:MaxFrameData]
		f.Truncated = true
	}
	f.Data = append([]byte(nil), data...)
	return f
}

// ElementEvent captures a decoded top-level element.
type ElementEvent struct {
	// Tag is the element name, e.g. "setNumberVector".
	Tag string `cbor:"1,keyasint"`

	// Kind is the dispatch category, e.g. "update".
	Kind string `cbor:"2,keyasint,omitempty"`

	// State is the vector state attribute, if present.
	State string `cbor:"3,keyasint,omitempty"`

	// Members is the number of child elements.
	Members int `cbor:"4,keyasint,omitempty"`

	// Message is the message text carried by the element.
	Message string `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures connection lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`

	// ExitCode is set on transitions into Disconnected.
	ExitCode *int `cbor:"5,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = 0
	StateEntityDevice     StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures keep-alive traffic.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`
	UID  string         `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	ControlMsgPingRequest ControlMsgType = 0
	ControlMsgPingReply   ControlMsgType = 1
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPingRequest:
		return "PING_REQUEST"
	case ControlMsgPingReply:
		return "PING_REPLY"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the exit code when the error ended the session.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
