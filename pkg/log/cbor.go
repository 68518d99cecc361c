package log

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// A capture file is a CBOR sequence of Event maps. New files start with
// the self-described CBOR tag (55799) so `file` and hex dumps recognise
// them; readers accept captures with or without the marker.
var captureMarker = []byte{0xd9, 0xd9, 0xf7}

// captureCodec holds the encode and decode modes shared by the file
// logger, the reader and the single-event helpers.
type captureCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var codec = mustCaptureCodec()

func mustCaptureCodec() captureCodec {
	enc, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture encoder mode: %v", err))
	}

	// Captures from newer versions may carry keys this build does not
	// know; they are skipped rather than rejected.
	dec, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture decoder mode: %v", err))
	}
	return captureCodec{enc: enc, dec: dec}
}

// EncodeEvent encodes one event without the file marker.
func EncodeEvent(event Event) ([]byte, error) {
	return codec.enc.Marshal(event)
}

// DecodeEvent decodes one event. A leading file marker is ignored, so the
// first record of a capture file decodes as well.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := codec.dec.Unmarshal(bytes.TrimPrefix(data, captureMarker), &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}

// startCapture prepares f for appending events. An empty file gets the
// marker; an existing capture is continued as is.
func startCapture(f *os.File) (*cbor.Encoder, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		if _, err := f.Write(captureMarker); err != nil {
			return nil, err
		}
	}
	return codec.enc.NewEncoder(f), nil
}

// openCapture returns a decoder positioned at the first event of r.
func openCapture(r io.Reader) *cbor.Decoder {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(captureMarker)); err == nil && bytes.Equal(head, captureMarker) {
		_, _ = br.Discard(len(captureMarker))
	}
	return codec.dec.NewDecoder(br)
}
