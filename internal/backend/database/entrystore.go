package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// EntryStore owns the persisted entry collection kept in a single slot.
type EntryStore struct {
	slot Slot
	// serializes load+save pairs of Append and Delete
	mu sync.Mutex
}

func NewEntryStore(slot Slot) *EntryStore {
	return &EntryStore{slot: slot}
}

// Load returns all stored entries in storage order. Unreadable or corrupt data yields an
// empty collection; invalid records are skipped.
func (s *EntryStore) Load(ctx context.Context) []Entry {
	data, err := s.slot.Read(ctx)
	if err != nil {
		slog.Error("failed to read entries", "error", err)
		return []Entry{}
	}
	return decodeEntries(data)
}

// Save overwrites the whole collection.
func (s *EntryStore) Save(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, entries)
}

// Clear removes all persisted entries.
func (s *EntryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.slot.Remove(ctx); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	return nil
}

// Append adds entry at the end of the collection.
func (s *EntryStore) Append(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.Load(ctx)
	for _, existing := range entries {
		if existing.ID == entry.ID {
			return fmt.Errorf("entry with id %s already exists", entry.ID)
		}
	}
	return s.save(ctx, append(entries, entry.Clone()))
}

// Delete removes the entry with the given id. It reports whether an entry was removed.
func (s *EntryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.Load(ctx)
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return false, nil
	}
	return true, s.save(ctx, kept)
}

// Get returns a copy of the entry with the given id.
func (s *EntryStore) Get(ctx context.Context, id string) (*Entry, bool) {
	for _, e := range s.Load(ctx) {
		if e.ID == id {
			c := e.Clone()
			return &c, true
		}
	}
	return nil, false
}

func (s *EntryStore) Close() error {
	return s.slot.Close()
}

func (s *EntryStore) save(ctx context.Context, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	if err := s.slot.Write(ctx, data); err != nil {
		return fmt.Errorf("failed to write entries: %w", err)
	}
	return nil
}

func decodeEntries(data []byte) []Entry {
	entries := []Entry{}
	if len(data) == 0 {
		return entries
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Error("stored entries are corrupt, treating as empty", "error", err, "size_bytes", len(data))
		return entries
	}

	seen := make(map[string]bool, len(raw))
	for i, item := range raw {
		var e Entry
		if err := json.Unmarshal(item, &e); err != nil {
			slog.Warn("dropping undecodable entry", "index", i, "error", err)
			continue
		}
		if err := e.Validate(); err != nil {
			slog.Warn("dropping invalid entry", "index", i, "entry_id", e.ID, "error", err)
			continue
		}
		if seen[e.ID] {
			slog.Warn("dropping duplicate entry", "index", i, "entry_id", e.ID)
			continue
		}
		seen[e.ID] = true
		entries = append(entries, e)
	}
	return entries
}
