package model

import (
	"time"

	"github.com/indiproto/indi-go/pkg/wire"
)

// Message is a human-readable notice sent by the server, either standalone
// or attached to a property vector.
type Message struct {
	Device    string
	Timestamp time.Time
	Text      string
}

// MessageFromElement extracts the message carried by el. The second result
// is false when el carries no message text.
func MessageFromElement(el *wire.Element) (Message, bool) {
	text, ok := el.LookupAttr(wire.AttrMessage)
	if !ok || text == "" {
		return Message{}, false
	}
	msg := Message{
		Device: el.Device(),
		Text:   text,
	}
	if ts, err := wire.ParseTimestamp(el.Attr(wire.AttrTimestamp)); err == nil {
		msg.Timestamp = ts
	} else {
		msg.Timestamp = time.Now().UTC()
	}
	return msg, true
}

// String formats the message the way INDI tools print it.
func (m Message) String() string {
	return wire.FormatTimestamp(m.Timestamp) + ": " + m.Text
}
