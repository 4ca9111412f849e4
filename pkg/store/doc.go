// Package store persists page results in SQLite.
//
// One website row is written per scanned page together with a row per
// finding, all in a single transaction. Payloads and call stacks are kept
// as JSON text; call stacks also get a murmur3 fingerprint so identical
// probing code can be grouped across sites without parsing JSON.
package store
