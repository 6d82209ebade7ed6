// Package storage defines the key-value contract the registry and the
// composition layer persist through.
//
// A Store is a flat map of "/" separated keys to opaque bytes. The cellbus
// layout is:
//
//	cells/{sector}/{name}                                  registry entry (JSON)
//	artifacts/{sector}/{name}/{version}/{upload}/server|client|schema  published artifacts
//	tissues/{id}                                           tissue definition (JSON)
//
// Three backends are provided:
//
//   - memstore: process-local map, for development and tests
//   - kvstore: NATS JetStream KV, with compare-and-swap Update
//   - objectstore: NATS JetStream Object Store, for artifact bundles
//
// Get distinguishes a missing key (ErrNotFound) from a backend that cannot
// be reached (errors.ErrStorageUnavailable). Callers rely on that split to
// tell "unknown cell" apart from "registry down".
//
// Stores that implement Updater apply read-modify-write cycles without losing
// concurrent writes; the registry uses it for its asynchronous metadata
// write-back.
package storage
