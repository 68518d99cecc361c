package wire

import (
	"encoding/xml"
	"strconv"
	"time"
)

// Outbound tag names.
const (
	TagGetProperties   = "getProperties"
	TagEnableBLOB      = "enableBLOB"
	TagNewTextVector   = "newTextVector"
	TagNewNumberVector = "newNumberVector"
	TagNewSwitchVector = "newSwitchVector"
	TagNewBLOBVector   = "newBLOBVector"
	TagPingReply       = "pingReply"
)

// Command is an element the client sends to the server.
type Command interface {
	// CommandTag returns the element tag written on the wire.
	CommandTag() string
}

// GetProperties asks the server to (re)define properties.
// Empty Device and Name request everything.
type GetProperties struct {
	XMLName xml.Name `xml:"getProperties"`
	Version string   `xml:"version,attr"`
	Device  string   `xml:"device,attr,omitempty"`
	Name    string   `xml:"name,attr,omitempty"`
}

// CommandTag implements Command.
func (GetProperties) CommandTag() string { return TagGetProperties }

// EnableBLOB sets the BLOB delivery mode for a device or one of its properties.
type EnableBLOB struct {
	XMLName xml.Name `xml:"enableBLOB"`
	Device  string   `xml:"device,attr"`
	Name    string   `xml:"name,attr,omitempty"`
	Mode    string   `xml:",chardata"`
}

// CommandTag implements Command.
func (EnableBLOB) CommandTag() string { return TagEnableBLOB }

// NewEnableBLOB builds an enableBLOB command.
func NewEnableBLOB(device, property string, mode BLOBHandling) EnableBLOB {
	return EnableBLOB{Device: device, Name: property, Mode: mode.String()}
}

// OneMember is a single member of a new*Vector command.
type OneMember struct {
	XMLName xml.Name
	Name    string `xml:"name,attr"`
	Size    int    `xml:"size,attr,omitempty"`
	Format  string `xml:"format,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// NewVector carries new values for a property from client to server.
type NewVector struct {
	XMLName   xml.Name
	Device    string      `xml:"device,attr"`
	Name      string      `xml:"name,attr"`
	Timestamp string      `xml:"timestamp,attr,omitempty"`
	Members   []OneMember `xml:",any"`
}

// CommandTag implements Command.
func (v NewVector) CommandTag() string { return v.XMLName.Local }

func newVector(tag, device, name string) NewVector {
	return NewVector{
		XMLName:   xml.Name{Local: tag},
		Device:    device,
		Name:      name,
		Timestamp: FormatTimestamp(time.Now()),
	}
}

// NewTextVector builds a newTextVector command.
func NewTextVector(device, name string, values map[string]string) NewVector {
	v := newVector(TagNewTextVector, device, name)
	for _, member := range sortedKeys(values) {
		v.Members = append(v.Members, OneMember{
			XMLName: xml.Name{Local: "oneText"},
			Name:    member,
			Value:   values[member],
		})
	}
	return v
}

// NewNumberVector builds a newNumberVector command.
func NewNumberVector(device, name string, values map[string]float64) NewVector {
	v := newVector(TagNewNumberVector, device, name)
	for _, member := range sortedKeys(values) {
		v.Members = append(v.Members, OneMember{
			XMLName: xml.Name{Local: "oneNumber"},
			Name:    member,
			Value:   strconv.FormatFloat(values[member], 'g', -1, 64),
		})
	}
	return v
}

// NewSwitchVector builds a newSwitchVector command.
func NewSwitchVector(device, name string, values map[string]SwitchState) NewVector {
	v := newVector(TagNewSwitchVector, device, name)
	for _, member := range sortedKeys(values) {
		v.Members = append(v.Members, OneMember{
			XMLName: xml.Name{Local: "oneSwitch"},
			Name:    member,
			Value:   values[member].String(),
		})
	}
	return v
}

// BLOBValue is an outbound binary attachment. Data must already be base64 encoded.
type BLOBValue struct {
	Format string
	Size   int
	Data   string
}

// NewBLOBVector builds a newBLOBVector command.
func NewBLOBVector(device, name string, values map[string]BLOBValue) NewVector {
	v := newVector(TagNewBLOBVector, device, name)
	for _, member := range sortedKeys(values) {
		b := values[member]
		v.Members = append(v.Members, OneMember{
			XMLName: xml.Name{Local: "oneBLOB"},
			Name:    member,
			Size:    b.Size,
			Format:  b.Format,
			Value:   b.Data,
		})
	}
	return v
}

// PingReply answers a pingRequest.
type PingReply struct {
	XMLName xml.Name `xml:"pingReply"`
	UID     string   `xml:"uid,attr"`
}

// CommandTag implements Command.
func (PingReply) CommandTag() string { return TagPingReply }
