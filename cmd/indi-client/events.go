package main

import (
	"log"

	"github.com/indiproto/indi-go/pkg/model"
	"github.com/indiproto/indi-go/pkg/transport"
)

// eventPrinter logs device model events.
type eventPrinter struct {
	model.NoopMediator
}

func (eventPrinter) NewDevice(d *model.Device) {
	log.Printf("[EVENT] New device: %s", d.Name())
}

func (eventPrinter) RemoveDevice(d *model.Device) {
	log.Printf("[EVENT] Device removed: %s", d.Name())
}

func (eventPrinter) NewProperty(p *model.Property) {
	log.Printf("[EVENT] New property: %s.%s (%s)", p.DeviceName(), p.Name(), p.Type())
}

func (eventPrinter) RemoveProperty(p *model.Property) {
	log.Printf("[EVENT] Property removed: %s.%s", p.DeviceName(), p.Name())
}

func (eventPrinter) NewMessage(d *model.Device, msg model.Message) {
	if d == nil {
		log.Printf("[MESSAGE] %s", msg)
		return
	}
	log.Printf("[MESSAGE] %s: %s", d.Name(), msg)
}

func (eventPrinter) ServerConnected() {
	log.Println("[EVENT] Connected to server")
}

func (eventPrinter) ServerDisconnected(exitCode int) {
	switch exitCode {
	case transport.ExitNormal:
		log.Println("[EVENT] Disconnected")
	case transport.ExitPeerClosed:
		log.Println("[EVENT] Server closed the connection")
	default:
		log.Printf("[EVENT] Connection lost (exit code %d)", exitCode)
	}
}
