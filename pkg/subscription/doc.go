// Package subscription holds the client-side interest state of an INDI session.
//
// # Watch List
//
// A WatchList records which properties the client wants to hear about.
// Each device maps to a set of property names:
//   - no entry for a device: every property is of interest
//   - an empty set (WatchDevice): every property is of interest
//   - a non-empty set (Watch): only the named properties are of interest
//
// The watch list drives both the getProperties requests sent on connect and
// the filtering of incoming updates.
//
// # BLOB Modes
//
// BLOBModes records the enableBLOB policy per (device, property) pair.
// An empty property name is the device-wide default. Lookup prefers an exact
// match over the device default; when neither exists the caller's own
// default applies (INDI servers default to Never).
//
// Both types are safe for concurrent use while a session is active.
package subscription
