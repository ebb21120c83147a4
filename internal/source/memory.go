// Package source provides the built-in context sources.
package source

import (
	"context"
	"log/slog"

	"kirabridge/internal/domain"
	"kirabridge/internal/memory"
)

// Retriever is the plain memory lookup wrapped by the memory source.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// Memory contributes persisted memories matching the query.
type Memory struct {
	retriever Retriever
	logger    *slog.Logger
}

func NewMemory(r Retriever, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{retriever: r, logger: logger}
}

func (m *Memory) Name() string    { return "memory" }
func (m *Memory) Available() bool { return m.retriever != nil }

// Context returns matching memories. The retriever's "no memories" answer is an
// empty, successful contribution; retriever errors are returned.
func (m *Memory) Context(ctx context.Context, req *domain.ContextRequest) (string, error) {
	text, err := m.retriever.Retrieve(ctx, req.Query)
	if err != nil {
		return "", err
	}
	if text == memory.NoMemories {
		m.logger.Debug("no memories for query")
		return "", nil
	}
	return text, nil
}
