package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"kirabridge/internal/domain"
)

// NoMemories is what the retriever returns when nothing matched.
const NoMemories = "No relevant memories found."

// RetrieverConfig configures a Retriever.
type RetrieverConfig struct {
	Store  domain.MemoryStore
	Limit  int
	Logger *slog.Logger
}

// Retriever is the plain memory lookup: search by query, fall back to recent
// memories for an empty query, and render the result as a bullet list.
type Retriever struct {
	store  domain.MemoryStore
	limit  int
	logger *slog.Logger
}

func NewRetriever(cfg RetrieverConfig) *Retriever {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retriever{store: cfg.Store, limit: cfg.Limit, logger: cfg.Logger}
}

// Retrieve returns formatted memories for query, or NoMemories.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	if r.store == nil {
		return "", fmt.Errorf("memory retriever: no store configured")
	}
	var (
		mems []domain.MemoryEntry
		err  error
	)
	if strings.TrimSpace(query) == "" {
		mems, err = r.store.GetRecentMemories(ctx, r.limit)
	} else {
		mems, err = r.store.SearchMemories(ctx, query, r.limit)
	}
	if err != nil {
		return "", fmt.Errorf("search memories: %w", err)
	}
	if len(mems) == 0 {
		return NoMemories, nil
	}
	r.logger.Debug("memories retrieved", "count", len(mems))
	return Format(mems), nil
}

// Baseline adapts Retrieve to the assembler's fallback signature. Its result
// is used unchanged, including the NoMemories text.
func (r *Retriever) Baseline(ctx context.Context, req *domain.ContextRequest) (string, error) {
	return r.Retrieve(ctx, req.Query)
}

// Format renders memories one per line as "- [category] content".
func Format(mems []domain.MemoryEntry) string {
	var b strings.Builder
	for i, m := range mems {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- [%s] %s", m.Category, strings.TrimSpace(m.Content))
	}
	return b.String()
}
