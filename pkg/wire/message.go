package wire

import (
	"encoding/xml"
	"strings"
)

// Inbound tag names.
const (
	TagDefTextVector   = "defTextVector"
	TagDefNumberVector = "defNumberVector"
	TagDefSwitchVector = "defSwitchVector"
	TagDefLightVector  = "defLightVector"
	TagDefBLOBVector   = "defBLOBVector"

	TagSetTextVector   = "setTextVector"
	TagSetNumberVector = "setNumberVector"
	TagSetSwitchVector = "setSwitchVector"
	TagSetLightVector  = "setLightVector"
	TagSetBLOBVector   = "setBLOBVector"

	TagDelProperty = "delProperty"
	TagMessage     = "message"
	TagPingRequest = "pingRequest"
)

// Attribute names shared by most elements.
const (
	AttrDevice    = "device"
	AttrName      = "name"
	AttrLabel     = "label"
	AttrGroup     = "group"
	AttrState     = "state"
	AttrPerm      = "perm"
	AttrRule      = "rule"
	AttrTimeout   = "timeout"
	AttrTimestamp = "timestamp"
	AttrMessage   = "message"
	AttrFormat    = "format"
	AttrSize      = "size"
	AttrMin       = "min"
	AttrMax       = "max"
	AttrStep      = "step"
	AttrUID       = "uid"
	AttrVersion   = "version"
)

// Category classifies inbound elements.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryDefinition
	CategoryUpdate
	CategoryDeletion
	CategoryMessage
	CategoryPing
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryDefinition:
		return "DEFINITION"
	case CategoryUpdate:
		return "UPDATE"
	case CategoryDeletion:
		return "DELETION"
	case CategoryMessage:
		return "MESSAGE"
	case CategoryPing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

// Classify returns the category of an inbound tag.
func Classify(tag string) Category {
	switch tag {
	case TagDelProperty:
		return CategoryDeletion
	case TagMessage:
		return CategoryMessage
	case TagPingRequest:
		return CategoryPing
	}
	if _, ok := VectorType(tag); ok {
		if strings.HasPrefix(tag, "def") {
			return CategoryDefinition
		}
		if strings.HasPrefix(tag, "set") {
			return CategoryUpdate
		}
	}
	return CategoryUnknown
}

// VectorType returns the property type addressed by a def/set/new vector tag.
func VectorType(tag string) (PropertyType, bool) {
	if len(tag) < 3 || !strings.HasSuffix(tag, "Vector") {
		return 0, false
	}
	switch tag[3 : len(tag)-len("Vector")] {
	case "Text":
		return PropertyText, true
	case "Number":
		return PropertyNumber, true
	case "Switch":
		return PropertySwitch, true
	case "Light":
		return PropertyLight, true
	case "BLOB":
		return PropertyBLOB, true
	default:
		return 0, false
	}
}

// Element is one XML element of the stream with all attributes and children.
type Element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []*Element `xml:",any"`
	Text     string     `xml:",chardata"`
}

// Tag returns the local tag name.
func (e *Element) Tag() string {
	return e.XMLName.Local
}

// Category classifies the element by its tag.
func (e *Element) Category() Category {
	return Classify(e.Tag())
}

// LookupAttr returns the named attribute and whether it is present.
func (e *Element) LookupAttr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Attr returns the named attribute or "" when absent.
func (e *Element) Attr(name string) string {
	v, _ := e.LookupAttr(name)
	return v
}

// Device returns the device attribute.
func (e *Element) Device() string {
	return e.Attr(AttrDevice)
}

// Name returns the name attribute.
func (e *Element) Name() string {
	return e.Attr(AttrName)
}

// Value returns the character data with surrounding whitespace removed.
func (e *Element) Value() string {
	return strings.TrimSpace(e.Text)
}
