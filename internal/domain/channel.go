package domain

import "context"

// Channel is a long-running front-end connection (Slack socket mode, the HTTP chat API).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
