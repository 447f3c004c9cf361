package database

import "context"

// DefaultSlotKey is the fixed key the entry collection is stored under.
const DefaultSlotKey = "photostamp_entries_v1"

// Slot is a single key-value storage cell holding the serialized entry collection.
type Slot interface {
	// Read returns nil, nil when the slot has never been written or was removed.
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the slot contents atomically.
	Write(ctx context.Context, data []byte) error
	// Remove deletes the slot. Removing an absent slot is not an error.
	Remove(ctx context.Context) error
	Close() error
}
