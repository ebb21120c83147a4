// Package bus carries front-end payloads from chat channels to the pipeline
// worker and routes replies back.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kirabridge/internal/domain"
)

const (
	defaultBufferSize     = 100
	defaultPublishTimeout = 10 * time.Second
)

// Config configures an InMemoryBus.
type Config struct {
	BufferSize     int
	PublishTimeout time.Duration // how long Publish waits on a full queue
	Logger         *slog.Logger
}

// InMemoryBus is a Go-channel based message bus for in-process communication.
type InMemoryBus struct {
	inbound  chan domain.InboundMessage
	handlers map[string]func(domain.OutboundMessage)
	mu       sync.RWMutex
	closed   bool
	timeout  time.Duration
	logger   *slog.Logger
}

func New(cfg Config) *InMemoryBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &InMemoryBus{
		inbound:  make(chan domain.InboundMessage, cfg.BufferSize),
		handlers: make(map[string]func(domain.OutboundMessage)),
		timeout:  cfg.PublishTimeout,
		logger:   cfg.Logger,
	}
}

// Publish enqueues msg. On a full queue it waits up to the publish timeout
// or until ctx is done, then gives up with an error instead of blocking the
// channel forever.
func (b *InMemoryBus) Publish(ctx context.Context, msg domain.InboundMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return domain.ErrBusClosed
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	select {
	case b.inbound <- msg:
		return nil
	default:
	}

	b.logger.Warn("inbound bus full, waiting", "channel", msg.Channel, "sender", msg.SenderID)
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		b.logger.Error("message dropped, bus full", "channel", msg.Channel, "sender", msg.SenderID, "waited", b.timeout)
		return fmt.Errorf("publish %s message: bus full for %s", msg.Channel, b.timeout)
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// SendOutbound hands msg to the handler registered for msg.Channel.
func (b *InMemoryBus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.RLock()
	handler, ok := b.handlers[msg.Channel]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no outbound handler registered", "channel", msg.Channel)
		return
	}
	handler(msg)
}

func (b *InMemoryBus) OnOutbound(channelName string, handler func(domain.OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channelName] = handler
}

// Close stops accepting messages and closes the subscription channel. Safe to call twice.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
