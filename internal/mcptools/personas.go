package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ListPersonasTool handles the list_personas MCP tool.
type ListPersonasTool struct {
	personas PersonaLister
}

func NewListPersonasTool(p PersonaLister) *ListPersonasTool {
	return &ListPersonasTool{personas: p}
}

func (t *ListPersonasTool) Definition() mcp.Tool {
	return mcp.NewTool("list_personas",
		mcp.WithDescription("List the loaded personas with their communication style, tone and traits."),
		mcp.WithBoolean("include_overlay",
			mcp.Description("Include each persona's prompt overlay"),
		),
	)
}

func (t *ListPersonasTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defs := t.personas.List()
	if len(defs) == 0 {
		return mcp.NewToolResultText("No personas loaded."), nil
	}
	withOverlay := req.GetBool("include_overlay", false)

	var b strings.Builder
	fmt.Fprintf(&b, "%d personas:\n\n", len(defs))
	for _, d := range defs {
		fmt.Fprintf(&b, "- %s (%s): %s, %s", d.Name, d.DisplayName, d.CommunicationStyle, d.Tone)
		if len(d.Traits) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(d.Traits, ", "))
		}
		b.WriteString("\n")
		if withOverlay {
			for _, line := range strings.Split(strings.TrimSpace(d.PromptOverlay), "\n") {
				b.WriteString("    " + line + "\n")
			}
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}
