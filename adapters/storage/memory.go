package storage

import "context"

// MemoryAdapter is a fixed in-memory pattern source.
type MemoryAdapter struct {
	patterns []string
}

// NewMemoryAdapter creates a memory source holding patterns in order.
func NewMemoryAdapter(patterns ...string) *MemoryAdapter {
	return &MemoryAdapter{patterns: append([]string(nil), patterns...)}
}

func (m *MemoryAdapter) GetPatterns(_ context.Context) ([]string, error) {
	return append([]string(nil), m.patterns...), nil
}
