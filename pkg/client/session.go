package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/indiproto/indi-go/pkg/log"
	"github.com/indiproto/indi-go/pkg/wire"
)

// session adapts a Client to transport.Handler so the callbacks stay off
// the public API.
type session struct {
	c *Client
}

func (s *session) OnConnected() {
	c := s.c
	c.devices.Clear()
	c.mediator.ServerConnected()

	if err := c.requestProperties(); err != nil {
		c.reportSessionError(fmt.Errorf("request properties: %w", err))
		return
	}
	if err := c.replayBLOBModes(); err != nil {
		c.reportSessionError(fmt.Errorf("replay BLOB modes: %w", err))
	}
}

func (s *session) OnElement(el *wire.Element) {
	s.c.logElement(el)
	if err := s.c.dispatcher.Dispatch(el); err != nil {
		s.c.reportError(err)
	}
}

func (s *session) OnError(err error) {
	s.c.reportError(err)
}

func (s *session) OnDisconnected(exitCode int) {
	if s.c.resetOnDisconnect {
		s.c.Clear()
	}
	s.c.mediator.ServerDisconnected(exitCode)
}

func (c *Client) reportError(err error) {
	var elErr *ElementError
	attrs := []any{"error", err}
	event := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.conn.ConnectionID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerClient,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerClient,
			Message: err.Error(),
			Context: "dispatch",
		},
	}
	if errors.As(err, &elErr) {
		attrs = append(attrs, "tag", elErr.Tag, "device", elErr.Device, "property", elErr.Property)
		event.Device = elErr.Device
		event.Property = elErr.Property
	}
	c.logger.Warn("dropped element", attrs...)
	c.plog.Log(event)

	if c.errorHandler != nil {
		c.errorHandler(err)
	}
}

// reportSessionError reports a failed initial request. The listener ends
// the session on its next read if the socket is gone.
func (c *Client) reportSessionError(err error) {
	c.logger.Warn("session start", "error", err)
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.conn.ConnectionID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerClient,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerClient,
			Message: err.Error(),
			Context: "connect",
		},
	})
	if c.errorHandler != nil {
		c.errorHandler(err)
	}
}

func (c *Client) logElement(el *wire.Element) {
	event := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.conn.ConnectionID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Device:       el.Device(),
		Property:     el.Name(),
	}
	if el.Category() == wire.CategoryPing {
		event.Category = log.CategoryControl
		event.ControlMsg = &log.ControlMsgEvent{Type: log.ControlMsgPingRequest, UID: el.Attr(wire.AttrUID)}
	} else {
		event.Element = &log.ElementEvent{
			Tag:     el.Tag(),
			Kind:    el.Category().String(),
			State:   el.Attr(wire.AttrState),
			Members: len(el.Children),
			Message: el.Attr(wire.AttrMessage),
		}
	}
	c.plog.Log(event)
}
