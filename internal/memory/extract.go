package memory

import (
	"context"
	"log/slog"
	"strings"

	"kirabridge/internal/domain"
)

// Memorizer saves memorable statements from inbound messages.
type Memorizer struct {
	store  domain.MemoryStore
	logger *slog.Logger
}

func NewMemorizer(store domain.MemoryStore, logger *slog.Logger) *Memorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memorizer{store: store, logger: logger}
}

// Observe extracts facts from msg and stores them. It returns how many were saved.
func (m *Memorizer) Observe(ctx context.Context, msg *domain.CanonicalMessage) int {
	saved := 0
	for _, f := range extractFacts(msg.Text) {
		entry := domain.MemoryEntry{
			Category:   f.Category,
			Content:    f.Content,
			Source:     msg.SourceTag + ":" + msg.ChannelID,
			Importance: f.Importance,
		}
		if err := m.store.SaveMemory(ctx, entry); err != nil {
			m.logger.Warn("failed to save memory", "err", err, "category", f.Category)
			continue
		}
		saved++
	}
	return saved
}

type extractedFact struct {
	Category   string
	Content    string
	Importance int
}

var factRules = []struct {
	category   string
	importance int
	patterns   []string
}{
	{"fact", 9, []string{"my name is", "i work at", "i work on", "i live in", "i am from", "my job is", "my role is", "i'm a"}},
	{"instruction", 8, []string{"remember that", "always ", "never ", "don't forget", "keep in mind"}},
	{"preference", 7, []string{"i like", "i prefer", "my favorite", "i love", "i hate", "i don't like"}},
}

// extractFacts keeps the whole message as the memory, one entry per matched category.
func extractFacts(text string) []extractedFact {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil
	}
	lower := strings.ToLower(content)
	var facts []extractedFact
	for _, rule := range factRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				facts = append(facts, extractedFact{Category: rule.category, Content: content, Importance: rule.importance})
				break
			}
		}
	}
	return facts
}
