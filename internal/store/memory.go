package store

import (
	"context"
	"sync"
	"time"
)

// Memory keeps the entry in process memory. It counts writes so tests can
// assert which operations reached storage.
type Memory struct {
	mu      sync.RWMutex
	entry   *Entry
	saves   int
	touches int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryWith creates an in-memory store pre-filled with e.
func NewMemoryWith(e Entry) *Memory {
	m := &Memory{}
	m.entry = cloneEntry(&e)
	return m
}

// Load returns a copy of the stored entry.
func (m *Memory) Load(_ context.Context) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.entry == nil {
		return Entry{}, ErrNotFound
	}
	return *cloneEntry(m.entry), nil
}

// Save replaces the stored entry.
func (m *Memory) Save(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entry = cloneEntry(&e)
	m.saves++
	return nil
}

// Touch updates the modification time of the stored entry.
func (m *Memory) Touch(_ context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entry == nil {
		return ErrNotFound
	}
	m.entry.ModTime = t
	m.touches++
	return nil
}

// Saves returns the number of Save calls.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Touches returns the number of successful Touch calls.
func (m *Memory) Touches() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.touches
}

func cloneEntry(e *Entry) *Entry {
	c := *e
	c.Body = append([]byte(nil), e.Body...)
	return &c
}
