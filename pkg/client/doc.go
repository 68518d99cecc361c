// Package client implements the INDI client engine.
//
// A Client owns one server session at a time. It combines a
// transport.Conn (socket, state machine, stream listener) with the
// session registries:
//   - model.Registry: the devices and properties defined by the server
//   - subscription.WatchList: devices and properties the client asked for
//   - subscription.BLOBModes: the enableBLOB policy per device and property
//
// Incoming elements are handled by a Dispatcher on the listener goroutine.
// The Dispatcher mutates the device registry and reports every change to
// the application through a model.Mediator.
//
// # Usage
//
//	cfg := client.DefaultConfig()
//	cfg.Host = "observatory.local"
//	c, err := client.New(cfg, myMediator)
//	if err != nil {
//	    return err
//	}
//	c.WatchDevice("CCD Simulator")
//	c.SetBLOBMode(wire.BLOBAlso, "CCD Simulator", "")
//	if err := c.Connect(ctx); err != nil {
//	    return err
//	}
//	defer c.Disconnect(transport.ExitNormal)
//
// # Errors
//
// Errors caused by a single malformed or unexpected element never end the
// session. They are wrapped in an ElementError and passed to
// Config.ErrorHandler. Only a corrupt XML stream ends the session, with
// exit code transport.ExitProtocolError.
package client
