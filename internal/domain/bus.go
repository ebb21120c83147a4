package domain

import (
	"context"
	"errors"
	"time"
)

// ErrBusClosed is returned when publishing to a closed bus.
var ErrBusClosed = errors.New("message bus closed")

// InboundMessage is a front-end payload published by a channel for the pipeline worker.
type InboundMessage struct {
	ID        string
	Channel   string // channel name used to route the reply
	ChatID    string
	ThreadID  string
	SenderID  string
	Payload   map[string]any // raw front-end payload handed to the adapter router
	Hint      *ConversationContext
	SourceTag string // optional; empty means auto-detect
	Persona   string
	Timestamp time.Time
}

// OutboundMessage is a reply routed back to the originating channel.
type OutboundMessage struct {
	ID       string // ID of the inbound message being answered
	Channel  string
	ChatID   string
	ThreadID string
	Content  string
	Format   string // text | markdown
	Error    bool
}

// MessageBus routes messages between channels and the pipeline worker.
type MessageBus interface {
	Publish(ctx context.Context, msg InboundMessage) error
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
	Close()
}
