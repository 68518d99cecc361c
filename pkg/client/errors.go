package client

import (
	"errors"
	"fmt"

	"github.com/indiproto/indi-go/pkg/model"
	"github.com/indiproto/indi-go/pkg/transport"
	"github.com/indiproto/indi-go/pkg/wire"
)

// Client errors.
var (
	ErrMalformedElement = errors.New("malformed element")
	ErrReadOnly         = errors.New("property is read-only")
)

// Errors shared with the lower layers, re-exported for callers that only
// import this package.
var (
	ErrDeviceNotFound   = model.ErrDeviceNotFound
	ErrPropertyNotFound = model.ErrPropertyNotFound
	ErrDuplicateDevice  = model.ErrDuplicateDevice
	ErrAlreadyConnected = transport.ErrAlreadyConnected
	ErrNotConnected     = transport.ErrNotConnected
	ErrProtocol         = wire.ErrCorruptStream
)

// ElementError describes why an incoming element was dropped.
type ElementError struct {
	Tag      string
	Device   string
	Property string
	Err      error
}

func (e *ElementError) Error() string {
	target := e.Device
	if e.Property != "" {
		target += "." + e.Property
	}
	if target == "" {
		return fmt.Sprintf("%s: %v", e.Tag, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Tag, target, e.Err)
}

func (e *ElementError) Unwrap() error {
	return e.Err
}

func elementError(el *wire.Element, err error) *ElementError {
	return &ElementError{
		Tag:      el.Tag(),
		Device:   el.Device(),
		Property: el.Name(),
		Err:      err,
	}
}

func malformed(el *wire.Element, reason string) *ElementError {
	return elementError(el, fmt.Errorf("%w: %s", ErrMalformedElement, reason))
}

func malformedCause(el *wire.Element, cause error) *ElementError {
	return elementError(el, fmt.Errorf("%w: %w", ErrMalformedElement, cause))
}
