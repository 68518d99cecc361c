// Package wire defines the XML wire format of the INDI protocol.
//
// INDI clients and servers exchange a stream of top-level XML elements over a
// single TCP connection. The stream is not a single XML document: there is no
// enclosing root element and elements follow each other until the connection
// closes.
//
// # Element Categories
//
// Inbound elements are classified by tag name:
//   - Definition: def*Vector (introduces a property and possibly a device)
//   - Update: set*Vector (new values for a known property)
//   - Deletion: delProperty (removes one property or a whole device)
//   - Message: message (free-form text, device or server scoped)
//   - Ping: pingRequest (server liveness check, answered with pingReply)
//
// Everything else is classified as CategoryUnknown and ignored by clients.
//
// # Outbound Commands
//
// The client emits getProperties, enableBLOB, new*Vector and pingReply. Each
// is a typed Command value; Encode turns it into the bytes written on the
// socket.
package wire
