package adapter

import (
	"fmt"
	"log/slog"
	"sync"

	"kirabridge/internal/domain"
)

// Outcome labels reported to the Observer.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
)

// Observer receives one event per Adapt call.
type Observer interface {
	ObserveAdapt(tag, outcome string)
}

// RouterConfig configures a Router.
type RouterConfig struct {
	Logger   *slog.Logger
	Observer Observer // optional
}

// Router holds the tag→adapter registry and resolves payloads to adapters.
// Registration happens at startup; Adapt is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
	logger   *slog.Logger
	observer Observer
}

func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		adapters: make(map[string]Adapter),
		logger:   logger,
		observer: cfg.Observer,
	}
}

// NewDefaultRouter registers the built-in adapters in probe order:
// slack, desktop, web, telegram, discord.
func NewDefaultRouter(cfg RouterConfig) *Router {
	r := NewRouter(cfg)
	r.Register(SlackTag, NewSlack())
	r.Register(DesktopTag, NewDesktop(DesktopTag))
	r.Register(WebTag, NewDesktop(WebTag))
	r.Register(TelegramTag, NewTelegram())
	r.Register(DiscordTag, NewDiscord())
	return r
}

// Register adds or replaces the adapter for tag. Replacing keeps the original
// probe position.
func (r *Router) Register(tag string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[tag]; !exists {
		r.order = append(r.order, tag)
	}
	r.adapters[tag] = a
	r.logger.Debug("registered adapter", "tag", tag, "adapter", a.Name())
}

// Tags returns the registered tags in probe order.
func (r *Router) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Detect resolves the tag for a payload: a "source" marker naming a registered
// tag wins, otherwise the first adapter whose Validate accepts the payload.
func (r *Router) Detect(p Payload) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if marker, ok := p["source"].(string); ok {
		if _, registered := r.adapters[marker]; registered {
			return marker, true
		}
	}
	for _, tag := range r.order {
		if r.adapters[tag].Validate(p) {
			return tag, true
		}
	}
	return "", false
}

// Adapt converts p into the canonical pair. An explicit tag bypasses detection.
// Errors match domain.ErrAdapterNotFound or domain.ErrInvalidMessage.
func (r *Router) Adapt(p Payload, hint *domain.ConversationContext, tag string) (*domain.CanonicalMessage, *domain.ConversationContext, error) {
	if tag == "" {
		detected, ok := r.Detect(p)
		if !ok {
			r.observe("", OutcomeNotFound)
			r.logger.Warn("no adapter accepted payload", "tags", r.Tags())
			return nil, nil, &domain.AdapterNotFoundError{}
		}
		tag = detected
	}

	r.mu.RLock()
	a, ok := r.adapters[tag]
	r.mu.RUnlock()
	if !ok {
		r.observe(tag, OutcomeNotFound)
		return nil, nil, &domain.AdapterNotFoundError{Tag: tag}
	}

	if err := r.validate(tag, a, p); err != nil {
		r.observe(tag, OutcomeInvalid)
		return nil, nil, err
	}

	msg, conv, err := a.Adapt(p, hint)
	if err != nil {
		r.observe(tag, OutcomeInvalid)
		r.logger.Warn("adapter rejected payload", "tag", tag, "err", err)
		return nil, nil, fmt.Errorf("adapt %s payload: %w", tag, err)
	}
	if err := msg.Validate(); err != nil {
		r.observe(tag, OutcomeInvalid)
		r.logger.Error("adapter produced invalid canonical message", "tag", tag, "err", err)
		return nil, nil, fmt.Errorf("adapter %s broke canonical invariants: %w", tag, err)
	}

	msg.SourceTag = tag
	if conv == nil {
		conv = &domain.ConversationContext{}
	}
	conv.SourceTag = tag
	r.observe(tag, OutcomeOK)
	r.logger.Debug("adapted message", "tag", tag, "user", msg.UserID, "channel", msg.ChannelID)
	return msg, conv, nil
}

func (r *Router) validate(tag string, a Adapter, p Payload) error {
	if c, ok := a.(Checker); ok {
		if err := c.Check(p); err != nil {
			return err
		}
		return nil
	}
	if !a.Validate(p) {
		return &domain.InvalidMessageError{Source: tag, Field: "payload", Reason: "rejected by adapter validation"}
	}
	return nil
}

func (r *Router) observe(tag, outcome string) {
	if r.observer != nil {
		r.observer.ObserveAdapt(tag, outcome)
	}
}
