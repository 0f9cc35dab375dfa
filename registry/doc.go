// Package registry provides a concurrent reservation-then-fill slot map.
//
// Identities are reserved before the object they name exists. The object is
// moved in later by a separate call, which makes the registry its owner:
//
//	absent ──Reserve──▶ reserved ──Fill──▶ filled
//	   ▲                    │                 │
//	   └──────Remove────────┴─────────────────┘
//
// Fill never replaces an object. V must not be a zero-sized type.
package registry
