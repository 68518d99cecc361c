package client

import (
	"log/slog"
	"time"

	"github.com/indiproto/indi-go/pkg/model"
	"github.com/indiproto/indi-go/pkg/subscription"
	"github.com/indiproto/indi-go/pkg/wire"
)

// Dispatcher interprets incoming elements. It holds no state of its own;
// everything lives in the registries it was created with. Dispatch must be
// called from a single goroutine (the stream listener).
type Dispatcher struct {
	devices  *model.Registry
	watch    *subscription.WatchList
	blobs    *subscription.BLOBModes
	mediator model.Mediator
	reply    func(wire.Command) error
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. reply sends answers such as pingReply
// and may be nil.
func NewDispatcher(
	devices *model.Registry,
	watch *subscription.WatchList,
	blobs *subscription.BLOBModes,
	mediator model.Mediator,
	reply func(wire.Command) error,
	logger *slog.Logger,
) *Dispatcher {
	if mediator == nil {
		mediator = model.NoopMediator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		devices:  devices,
		watch:    watch,
		blobs:    blobs,
		mediator: mediator,
		reply:    reply,
		logger:   logger,
	}
}

// Dispatch handles one element. A non-nil error means the element was
// dropped; the session is unaffected.
func (d *Dispatcher) Dispatch(el *wire.Element) error {
	switch el.Category() {
	case wire.CategoryDefinition:
		return d.define(el)
	case wire.CategoryUpdate:
		return d.update(el)
	case wire.CategoryDeletion:
		return d.delete(el)
	case wire.CategoryMessage:
		return d.message(el)
	case wire.CategoryPing:
		return d.ping(el)
	default:
		d.logger.Debug("ignoring unknown element", "tag", el.Tag())
		return nil
	}
}

// wanted applies the watch list. Once anything is watched, devices that
// are not watched are ignored entirely.
func (d *Dispatcher) wanted(device, property string) bool {
	if !d.watch.Empty() && !d.watch.IsWatched(device) {
		return false
	}
	return d.watch.InterestedIn(device, property)
}

func (d *Dispatcher) define(el *wire.Element) error {
	name := el.Device()
	if name == "" {
		return malformed(el, "missing device attribute")
	}
	if !d.wanted(name, el.Name()) {
		return nil
	}

	prop, err := model.ParseDefinition(el)
	if err != nil {
		return malformedCause(el, err)
	}

	dev, created := d.devices.FindOrAdd(name)
	if created {
		d.logger.Debug("new device", "device", name)
		d.mediator.NewDevice(dev)
	}
	if replaced := dev.DefineProperty(prop); replaced {
		d.logger.Debug("property redefined", "device", name, "property", prop.Name())
	}
	d.vectorMessage(dev, el)
	return nil
}

func (d *Dispatcher) update(el *wire.Element) error {
	name := el.Device()
	if name == "" {
		return malformed(el, "missing device attribute")
	}
	if el.Name() == "" {
		return malformed(el, "missing name attribute")
	}
	if !d.wanted(name, el.Name()) {
		return nil
	}
	if el.Tag() == wire.TagSetBLOBVector {
		if mode, ok := d.blobs.Lookup(name, el.Name()); ok && mode == wire.BLOBNever {
			d.logger.Debug("dropping BLOB", "device", name, "property", el.Name())
			return nil
		}
	}

	dev := d.devices.Find(name)
	if dev == nil {
		return elementError(el, ErrDeviceNotFound)
	}
	if _, err := dev.ApplyUpdate(el); err != nil {
		if dev.Property(el.Name()) == nil {
			return elementError(el, err)
		}
		return malformedCause(el, err)
	}
	d.vectorMessage(dev, el)
	return nil
}

func (d *Dispatcher) delete(el *wire.Element) error {
	name := el.Device()
	if name == "" {
		return malformed(el, "missing device attribute")
	}
	dev := d.devices.Find(name)
	if dev == nil {
		return elementError(el, ErrDeviceNotFound)
	}

	if property := el.Name(); property != "" {
		if _, err := dev.RemoveProperty(property); err != nil {
			return elementError(el, err)
		}
		d.vectorMessage(dev, el)
		return nil
	}

	if d.devices.Remove(name) {
		d.logger.Debug("device removed", "device", name)
		d.mediator.RemoveDevice(dev)
	}
	return nil
}

func (d *Dispatcher) message(el *wire.Element) error {
	msg, ok := model.MessageFromElement(el)
	if !ok {
		msg = model.Message{Device: el.Device(), Timestamp: time.Now().UTC()}
	}
	if name := el.Device(); name != "" {
		if dev := d.devices.Find(name); dev != nil {
			dev.AddMessage(msg)
			return nil
		}
	}
	d.mediator.NewMessage(nil, msg)
	return nil
}

func (d *Dispatcher) ping(el *wire.Element) error {
	if d.reply == nil {
		return nil
	}
	if err := d.reply(wire.PingReply{UID: el.Attr(wire.AttrUID)}); err != nil {
		return elementError(el, err)
	}
	return nil
}

// vectorMessage records the optional message attribute of a vector element.
func (d *Dispatcher) vectorMessage(dev *model.Device, el *wire.Element) {
	if msg, ok := model.MessageFromElement(el); ok {
		dev.AddMessage(msg)
	}
}
