// Package log provides protocol capture for INDI client sessions.
//
// Capture is separate from operational logging (slog): it records a
// machine-readable trace of every chunk sent or received, every decoded
// element and every connection state change, for offline analysis with
// the indi-log tool.
//
// # Basic Usage
//
//	// Console output during development
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture file
//	fl, _ := log.NewFileLogger("/var/log/indi/session.ilog")
//	cfg.ProtocolLogger = fl
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Layers
//
//   - Transport: raw byte chunks as read from or written to the socket (FrameEvent)
//   - Wire: decoded top-level XML elements (ElementEvent)
//   - Client: dispatch results and session state (StateChangeEvent, ErrorEventData)
//
// # File Format
//
// Capture files are a sequence of CBOR-encoded events with integer keys.
// The conventional extension is .ilog.
package log
