package agent

import (
	"context"
	"fmt"
	"strings"

	"kirabridge/internal/domain"
)

// ContextAgent answers with the assembled context itself. It stands in for
// the language model when none is configured.
type ContextAgent struct{}

func NewContextAgent() *ContextAgent { return &ContextAgent{} }

func (a *ContextAgent) Name() string { return "context" }

func (a *ContextAgent) Respond(_ context.Context, req domain.AgentRequest) (string, error) {
	if strings.TrimSpace(req.Context) != "" {
		return "Enhanced Context Retrieved:\n\n" + req.Context, nil
	}
	text := ""
	if req.Message != nil {
		text = req.Message.Text
	}
	return fmt.Sprintf("Message received: '%s'\n\nNo additional context was found for this message.", text), nil
}
