package tokenstore

import (
	"context"
	"sync"
)

// Memory is a process-local Store. The zero value is ready to use.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory returns a Memory holding token ("" for empty).
func NewMemory(token string) *Memory {
	return &Memory{token: token}
}

func (m *Memory) Load(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *Memory) Save(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
