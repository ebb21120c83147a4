package source

import (
	"context"

	"kirabridge/internal/domain"
	"kirabridge/internal/oneflow"
)

// OneFlow contributes project, task and user data from a OneFlow provider.
type OneFlow struct {
	provider oneflow.Provider
}

func NewOneFlow(p oneflow.Provider) *OneFlow { return &OneFlow{provider: p} }

func (o *OneFlow) Name() string { return "oneflow" }

func (o *OneFlow) Available() bool { return o.provider != nil && o.provider.Available() }

func (o *OneFlow) Context(ctx context.Context, req *domain.ContextRequest) (string, error) {
	q := oneflow.Query{Text: req.Query}
	if req.Message != nil {
		q.UserID = req.Message.UserID
		q.ChannelID = req.Message.ChannelID
	}
	return o.provider.Fetch(ctx, q)
}
