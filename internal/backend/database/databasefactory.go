package database

import (
	"fmt"
	"log/slog"
)

// NewSlot creates the storage slot for the given backend type.
func NewSlot(slotType, connectionString, key string) (slot Slot, err error) {
	if key == "" {
		key = DefaultSlotKey
	}

	switch slotType {
	case "sqlite":
		slot, err = NewSQLiteSlot(connectionString, key)
	case "redis":
		slot, err = NewRedisSlot(connectionString, key)
	case "file":
		slot, err = NewFileSlot(connectionString)
	case "memory":
		slot = NewMemorySlot()
	default:
		return nil, fmt.Errorf("unsupported store type: %s", slotType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", slotType, err)
	}

	slog.Info("storage slot opened", "type", slotType, "key", key)
	return slot, nil
}
