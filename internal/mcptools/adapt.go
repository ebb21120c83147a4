package mcptools

import (
	"bytes"
	"context"
	"encoding/json"

	"kirabridge/internal/adapter"
	"kirabridge/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

// AdaptMessageTool handles the adapt_message MCP tool.
type AdaptMessageTool struct {
	router MessageAdapter
}

func NewAdaptMessageTool(r MessageAdapter) *AdaptMessageTool {
	return &AdaptMessageTool{router: r}
}

func (t *AdaptMessageTool) Definition() mcp.Tool {
	return mcp.NewTool("adapt_message",
		mcp.WithDescription(
			"Normalize a raw front-end payload (Slack event, desktop shell message, Telegram update, "+
				"Discord message) into message_data and slack_data.",
		),
		mcp.WithObject("payload",
			mcp.Required(),
			mcp.Description("The raw payload as a JSON object (a JSON-encoded string is also accepted)"),
		),
		mcp.WithString("source",
			mcp.Description("Adapter tag: slack, desktop, web, telegram or discord. Detected when omitted."),
		),
	)
}

type adaptResult struct {
	MessageData domain.MessageData `json:"message_data"`
	SlackData   domain.SlackData   `json:"slack_data"`
}

func (t *AdaptMessageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, ok := payloadArg(req, "payload")
	if !ok {
		return mcp.NewToolResultError("'payload' must be a JSON object"), nil
	}

	msg, conv, err := t.router.Adapt(payload, nil, req.GetString("source", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(adaptResult{MessageData: msg.Wire(), SlackData: conv.Wire()})
}

// payloadArg reads an object argument, accepting a JSON-encoded string too.
func payloadArg(req mcp.CallToolRequest, key string) (adapter.Payload, bool) {
	switch v := req.GetArguments()[key].(type) {
	case map[string]any:
		return v, true
	case string:
		dec := json.NewDecoder(bytes.NewReader([]byte(v)))
		dec.UseNumber()
		var p map[string]any
		if err := dec.Decode(&p); err != nil || p == nil {
			return nil, false
		}
		return p, true
	}
	return nil, false
}
