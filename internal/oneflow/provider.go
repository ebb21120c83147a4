// Package oneflow fetches project-tracking data (tasks, projects, users)
// relevant to a chat query.
package oneflow

import "context"

// Query is what a provider is asked about.
type Query struct {
	Text      string
	UserID    string
	ChannelID string
}

// Provider returns a textual summary of project data relevant to a query.
// An empty string with a nil error means nothing relevant was found.
type Provider interface {
	Name() string
	Available() bool
	Fetch(ctx context.Context, q Query) (string, error)
}
