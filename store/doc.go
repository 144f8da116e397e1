// Package store persists serialized session state between process runs.
//
// The library core treats durability as a caller concern: an AuthState
// round-trips through a single JSON blob. FileStore is a ready-made home
// for that blob on local disk, with optional AES-256-GCM encryption at
// rest.
package store
