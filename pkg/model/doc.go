// Package model implements the client-side INDI device data model.
//
// # Hierarchy
//
// INDI uses a two-level hierarchy:
//
//	Device > Property (vector) > Member
//
// A Device is created the first time a server defines a property for it.
// Each Property is a typed vector (Text, Number, Switch, Light or BLOB)
// whose members carry the actual values.
//
// # Ownership
//
// The Registry owns every Device, and each Device owns its properties
// and its message log. A Device holds a non-owning reference to the
// Mediator so that mutations can be reported to the application without
// the model depending on the client engine.
//
// # Concurrency
//
// All types are safe for concurrent use. Mutations performed by the
// stream listener are applied atomically per element: a reader never
// observes a vector with only part of an update applied.
package model
