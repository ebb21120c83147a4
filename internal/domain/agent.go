package domain

import "context"

// AgentRequest is everything the downstream agent receives for one message.
type AgentRequest struct {
	SystemPrompt string
	Context      string
	Message      *CanonicalMessage
	Conversation *ConversationContext
}

// Agent is the downstream language-model pipeline.
type Agent interface {
	Name() string
	Respond(ctx context.Context, req AgentRequest) (string, error)
}
