package mcptools

import (
	"context"
	"fmt"
	"strings"

	"kirabridge/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	mcpUserID    = "mcp-user"
	mcpChannelID = "mcp"
)

// AssembleContextTool handles the assemble_context MCP tool.
type AssembleContextTool struct {
	assembler      Assembler
	defaultPersona string
}

func NewAssembleContextTool(a Assembler, defaultPersona string) *AssembleContextTool {
	return &AssembleContextTool{assembler: a, defaultPersona: defaultPersona}
}

func (t *AssembleContextTool) Definition() mcp.Tool {
	return mcp.NewTool("assemble_context",
		mcp.WithDescription(
			"Assemble the composite context for a query from every registered context source "+
				"(memories, project data, persona guidance). Falls back to plain memory retrieval "+
				"when no source contributes.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The user message to gather context for"),
		),
		mcp.WithString("persona",
			mcp.Description("Persona name; defaults to the configured default persona"),
		),
		mcp.WithString("user_id",
			mcp.Description("Sender ID used to scope project data"),
		),
		mcp.WithString("channel_id",
			mcp.Description("Channel ID used to scope project data"),
		),
		mcp.WithBoolean("details",
			mcp.Description("Append per-source outcomes after the context"),
		),
	)
}

func (t *AssembleContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	persona := req.GetString("persona", t.defaultPersona)

	msg, err := domain.NewCanonicalMessage(domain.MessageFields{
		UserID:    req.GetString("user_id", mcpUserID),
		Text:      query,
		ChannelID: req.GetString("channel_id", mcpChannelID),
		SourceTag: "mcp",
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.assembler.Assemble(ctx, &domain.ContextRequest{
		Query:   query,
		Message: msg,
		Persona: persona,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("context assembly failed: %v", err)), nil
	}

	var b strings.Builder
	if strings.TrimSpace(res.Text) == "" {
		b.WriteString("No context found for this query.")
	} else {
		b.WriteString(res.Text)
	}

	if req.GetBool("details", false) {
		b.WriteString("\n\n---\n")
		if res.UsedFallback {
			b.WriteString("fallback: baseline memory retrieval\n")
		}
		for _, c := range res.Contributions {
			switch {
			case c.Skipped:
				fmt.Fprintf(&b, "- %s: unavailable\n", c.SourceName)
			case !c.Succeeded:
				fmt.Fprintf(&b, "- %s: failed (%s)\n", c.SourceName, c.Error)
			default:
				fmt.Fprintf(&b, "- %s: %d chars\n", c.SourceName, len(c.Text))
			}
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}
