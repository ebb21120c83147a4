package domain

import (
	"context"
	"time"
)

// MemoryStore persists long-term memories that feed the memory context source.
type MemoryStore interface {
	SaveMemory(ctx context.Context, mem MemoryEntry) error
	SearchMemories(ctx context.Context, query string, limit int) ([]MemoryEntry, error)
	GetRecentMemories(ctx context.Context, limit int) ([]MemoryEntry, error)
	Close() error
}

type MemoryEntry struct {
	ID         int64      `json:"id"`
	Category   string     `json:"category"` // fact | preference | summary | instruction
	Content    string     `json:"content"`
	Source     string     `json:"source"`    // channel or user the memory came from
	Importance int        `json:"importance"` // 1-10
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
