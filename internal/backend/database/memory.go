package database

import (
	"context"
	"sync"
)

// MemorySlot keeps the slot in process memory.
type MemorySlot struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (m *MemorySlot) Read(_ context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, nil
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *MemorySlot) Write(_ context.Context, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	m.data = buf
	m.mu.Unlock()
	return nil
}

func (m *MemorySlot) Remove(_ context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

func (m *MemorySlot) Close() error {
	return nil
}
