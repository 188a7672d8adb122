// Package storage provides the key-value abstractions the wallet persists to.
//
// Every coin context writes through a Batch so that one block, one rewind or
// one account mutation becomes visible to readers all at once. Readers take a
// Snapshot and never observe a half-applied batch.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Reader is the read half of a key-value store.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// ForEach iterates in ascending key order over all keys with the given
	// prefix. The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	// fn must not start another ForEach on the same Reader.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
}

// Writer is the write half of a key-value store.
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// ReadWriter combines Reader and Writer.
type ReadWriter interface {
	Reader
	Writer
}

// DB is the interface for key-value storage.
type DB interface {
	ReadWriter
	Close() error
}

// Batch buffers writes and applies them atomically on Commit. Reads through a
// batch observe its own pending writes.
type Batch interface {
	ReadWriter
	Commit() error
	// Discard drops the pending writes. It is safe to call after Commit.
	Discard()
}

// Batcher is implemented by databases that support atomic batches.
type Batcher interface {
	NewBatch() Batch
}

// Snapshot is a read-only, point-in-time view of a database.
type Snapshot interface {
	Reader
	Discard()
}

// Snapshotter is implemented by databases that support consistent snapshots.
type Snapshotter interface {
	Snapshot() Snapshot
}

// Store is what a coin context needs from its database.
type Store interface {
	DB
	Batcher
	Snapshotter
}
