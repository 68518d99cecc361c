package wire

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrCorruptStream indicates the tokenizer can no longer make sense of the stream.
var ErrCorruptStream = errors.New("corrupt XML stream")

// TimestampLayout is the INDI timestamp format (UTC, no zone designator).
const TimestampLayout = "2006-01-02T15:04:05"

// readRecorder remembers the first error returned by the underlying reader so
// transport failures can be told apart from tokenizer failures.
type readRecorder struct {
	r   io.Reader
	err error
}

func (rr *readRecorder) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if err != nil && rr.err == nil {
		rr.err = err
	}
	return n, err
}

// Decoder yields complete top-level elements from an INDI byte stream.
type Decoder struct {
	src *readRecorder
	dec *xml.Decoder
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	src := &readRecorder{r: r}
	return &Decoder{
		src: src,
		dec: xml.NewDecoder(src),
	}
}

// Next blocks until the next complete top-level element is available.
//
// Errors from the underlying reader (including io.EOF) are returned as is.
// Any other failure is wrapped with ErrCorruptStream; the decoder cannot be
// used after that.
func (d *Decoder) Next() (*Element, error) {
	for {
		tok, err := d.dec.Token()
		if err != nil {
			return nil, d.classify(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{}
			if err := d.dec.DecodeElement(el, &t); err != nil {
				return nil, d.classify(err)
			}
			return el, nil
		case xml.EndElement:
			return nil, fmt.Errorf("%w: unexpected </%s>", ErrCorruptStream, t.Name.Local)
		default:
			// Whitespace, comments and processing instructions between elements.
		}
	}
}

func (d *Decoder) classify(err error) error {
	if d.src.err != nil {
		return d.src.err
	}
	return fmt.Errorf("%w: %v", ErrCorruptStream, err)
}

// Encode marshals a command followed by a newline.
func Encode(cmd Command) ([]byte, error) {
	data, err := xml.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", cmd.CommandTag(), err)
	}
	return append(data, '\n'), nil
}

// ParseTimestamp parses an INDI timestamp. Fractional seconds and a trailing
// "Z" are accepted.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.ParseInLocation(TimestampLayout+".999999999", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatTimestamp formats t as an INDI timestamp in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
