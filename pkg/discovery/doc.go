// Package discovery finds INDI servers on the local network via mDNS/DNS-SD.
//
// INDI servers announce themselves as _indi._tcp (usually through avahi or
// the INDI Web Manager). The instance name is the human-readable server
// name; the port is the INDI port (7624 unless configured otherwise).
//
// # TXT Records
//
// TXT records are optional. When present they may carry:
//   - ver: INDI protocol version spoken by the server (e.g. "1.7")
//   - txtvers: version of the TXT record layout
//
// Entries with a protocol version that does not share the client's major
// version are skipped.
//
// # Aggregation
//
// The same server is often seen on several interfaces. Entries are
// aggregated by instance name: addresses from every interface are merged
// into one Server, and a Server is forgotten once its last address goes
// away.
package discovery
