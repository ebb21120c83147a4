package domain

import "context"

// ContextRequest carries the per-request inputs every context source sees.
type ContextRequest struct {
	Query        string
	Message      *CanonicalMessage
	Conversation *ConversationContext
	Persona      string
	Extra        map[string]any
}

// ContextSource contributes one kind of text to the composite context.
// A source reports faults by returning an error; it must not swallow them
// and return an empty string.
type ContextSource interface {
	Name() string
	// Available is a cheap pre-check with no side effects.
	Available() bool
	Context(ctx context.Context, req *ContextRequest) (string, error)
}

// ContextContribution is the outcome of one source for one assembly.
type ContextContribution struct {
	SourceName string `json:"source_name"`
	Text       string `json:"text"`
	Succeeded  bool   `json:"succeeded"`
	Skipped    bool   `json:"skipped,omitempty"` // source reported unavailable
	Error      string `json:"error,omitempty"`
}

// BaselineFunc is the unenhanced retrieval used when no source contributes.
type BaselineFunc func(ctx context.Context, req *ContextRequest) (string, error)
