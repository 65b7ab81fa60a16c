// Package cache stores inference results keyed by request content, so
// re-running an unchanged region does not hit the backend again.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/menta2k/region-console/internal/utils"
	"github.com/menta2k/region-console/pkg/types"
)

// Cache is a result store. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*types.InferenceResult, error)
	Set(ctx context.Context, key string, res *types.InferenceResult) error
}

// Key derives a cache key from everything that reaches the backend.
func Key(req types.InferenceRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	return utils.BytesMD5(data), nil
}

// Memory is an in-process cache without expiry.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) (*types.InferenceResult, error) {
	m.mu.RLock()
	data, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return types.ParseResult(data)
}

func (m *Memory) Set(_ context.Context, key string, res *types.InferenceResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = data
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored results.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
