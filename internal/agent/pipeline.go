// Package agent turns a raw front-end payload into a reply: adapt, assemble
// context, compose the persona prompt and hand everything to the downstream agent.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kirabridge/internal/adapter"
	"kirabridge/internal/assembler"
	"kirabridge/internal/domain"
)

// Request status labels reported to the Observer.
const (
	StatusOK         = "ok"
	StatusRejected   = "rejected"
	StatusError      = "error"
	StatusAgentError = "agent_error"
)

const emptyReply = "I received your message, but I'm having trouble generating a response. Please try again."

// PromptComposer injects a named persona overlay into the base prompt.
// It reports false when the persona is unset or unknown.
type PromptComposer interface {
	Compose(base, persona string) (string, bool)
}

// MessageObserver sees every accepted message, e.g. to extract memories.
type MessageObserver interface {
	Observe(ctx context.Context, msg *domain.CanonicalMessage) int
}

// UsageRecorder records which persona answered which message.
type UsageRecorder interface {
	RecordPersonaUse(ctx context.Context, persona, sourceTag, channelID string) error
}

// Observer receives one event per handled request.
type Observer interface {
	ObserveRequest(tag, status string, d time.Duration)
}

// Inbound is one request entering the pipeline.
type Inbound struct {
	Payload   adapter.Payload
	Hint      *domain.ConversationContext // optional conversation supplied by the channel
	SourceTag string                      // optional; empty means auto-detect
	Persona   string                      // optional; empty means the configured default
}

// Reply is the pipeline's answer together with the canonical records it was built from.
type Reply struct {
	Text         string
	Message      *domain.CanonicalMessage
	Conversation *domain.ConversationContext
	PersonaUsed  string // empty when no persona resolved
	Timestamp    string // RFC3339, UTC
	Context      *assembler.Result
}

// PipelineConfig wires the pipeline's collaborators. Router and Assembler are required.
type PipelineConfig struct {
	Router         *adapter.Router
	Assembler      *assembler.Assembler
	Personas       PromptComposer
	Agent          domain.Agent // defaults to a ContextAgent
	BasePrompt     string
	DefaultPersona string
	Memorizer      MessageObserver
	Usage          UsageRecorder
	Observer       Observer
	Logger         *slog.Logger
}

// Pipeline handles one message at a time; it is safe for concurrent use.
type Pipeline struct {
	router         *adapter.Router
	assembler      *assembler.Assembler
	personas       PromptComposer
	agent          domain.Agent
	basePrompt     string
	defaultPersona string
	memorizer      MessageObserver
	usage          UsageRecorder
	observer       Observer
	logger         *slog.Logger
	now            func() time.Time
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Router == nil {
		return nil, fmt.Errorf("pipeline: router is required")
	}
	if cfg.Assembler == nil {
		return nil, fmt.Errorf("pipeline: assembler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Agent == nil {
		cfg.Agent = NewContextAgent()
	}
	return &Pipeline{
		router:         cfg.Router,
		assembler:      cfg.Assembler,
		personas:       cfg.Personas,
		agent:          cfg.Agent,
		basePrompt:     cfg.BasePrompt,
		defaultPersona: cfg.DefaultPersona,
		memorizer:      cfg.Memorizer,
		usage:          cfg.Usage,
		observer:       cfg.Observer,
		logger:         cfg.Logger,
		now:            time.Now,
	}, nil
}

// Handle runs one request. Validation and routing errors are returned as-is
// (see domain.IsRejection); a failing baseline retrieval is returned wrapped.
// Every other fault degrades to a best-effort reply.
func (p *Pipeline) Handle(ctx context.Context, in Inbound) (*Reply, error) {
	start := time.Now()

	msg, conv, err := p.router.Adapt(in.Payload, in.Hint, in.SourceTag)
	if err != nil {
		p.observe(in.SourceTag, StatusRejected, start)
		return nil, err
	}

	personaName := in.Persona
	if personaName == "" {
		personaName = p.defaultPersona
	}

	result, err := p.assembler.Assemble(ctx, &domain.ContextRequest{
		Query:        msg.Text,
		Message:      msg,
		Conversation: conv,
		Persona:      personaName,
	})
	if err != nil {
		p.observe(msg.SourceTag, StatusError, start)
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	systemPrompt, used := p.basePrompt, false
	if p.personas != nil {
		systemPrompt, used = p.personas.Compose(p.basePrompt, personaName)
	}
	if !used {
		personaName = ""
	}

	status := StatusOK
	text, err := p.agent.Respond(ctx, domain.AgentRequest{
		SystemPrompt: systemPrompt,
		Context:      result.Text,
		Message:      msg,
		Conversation: conv,
	})
	switch {
	case err != nil:
		p.logger.Error("agent failed", "agent", p.agent.Name(), "source", msg.SourceTag, "err", err)
		text = fmt.Sprintf("Sorry, I encountered an error processing your message: %s", err)
		status = StatusAgentError
	case strings.TrimSpace(text) == "":
		text = emptyReply
	}

	p.remember(ctx, msg, personaName)
	p.observe(msg.SourceTag, status, start)
	p.logger.Info("message handled",
		"source", msg.SourceTag,
		"channel", msg.ChannelID,
		"persona", personaName,
		"context_sources", result.Succeeded(),
		"fallback", result.UsedFallback,
		"reply_len", len(text),
	)

	return &Reply{
		Text:         text,
		Message:      msg,
		Conversation: conv,
		PersonaUsed:  personaName,
		Timestamp:    p.now().UTC().Format(time.RFC3339),
		Context:      result,
	}, nil
}

// Router exposes the adapter registry, e.g. for detection-only callers.
func (p *Pipeline) Router() *adapter.Router { return p.router }

// Assembler exposes the context assembler used by the pipeline.
func (p *Pipeline) Assembler() *assembler.Assembler { return p.assembler }

func (p *Pipeline) remember(ctx context.Context, msg *domain.CanonicalMessage, personaName string) {
	if p.memorizer != nil {
		if n := p.memorizer.Observe(ctx, msg); n > 0 {
			p.logger.Debug("saved memories from message", "count", n, "channel", msg.ChannelID)
		}
	}
	if p.usage != nil && personaName != "" {
		if err := p.usage.RecordPersonaUse(ctx, personaName, msg.SourceTag, msg.ChannelID); err != nil {
			p.logger.Warn("failed to record persona use", "persona", personaName, "err", err)
		}
	}
}

func (p *Pipeline) observe(tag, status string, start time.Time) {
	if p.observer != nil {
		p.observer.ObserveRequest(tag, status, time.Since(start))
	}
}
