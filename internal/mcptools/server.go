// Package mcptools exposes context assembly, persona listing and payload
// adaptation as MCP tools.
//
// Each tool is a struct with its dependencies injected through the
// constructor, a Definition() returning the mcp.Tool schema and a Handle()
// serving the call. Tool failures are reported as error results, never as
// protocol errors.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"kirabridge/internal/adapter"
	"kirabridge/internal/assembler"
	"kirabridge/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Assembler builds the composite context for a request.
type Assembler interface {
	Assemble(ctx context.Context, req *domain.ContextRequest) (*assembler.Result, error)
}

// PersonaLister lists the loaded personas.
type PersonaLister interface {
	List() []domain.PersonaDefinition
}

// MessageAdapter converts a front-end payload to the canonical pair.
type MessageAdapter interface {
	Adapt(p adapter.Payload, hint *domain.ConversationContext, tag string) (*domain.CanonicalMessage, *domain.ConversationContext, error)
}

// ServerConfig wires the tools. A nil dependency leaves its tool unregistered.
type ServerConfig struct {
	Version        string
	Assembler      Assembler
	Personas       PersonaLister
	Router         MessageAdapter
	DefaultPersona string
}

// NewServer builds an MCP server with every tool whose dependency is set.
func NewServer(cfg ServerConfig) *server.MCPServer {
	s := server.NewMCPServer(
		"kirabridge",
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	if cfg.Assembler != nil {
		t := NewAssembleContextTool(cfg.Assembler, cfg.DefaultPersona)
		s.AddTool(t.Definition(), t.Handle)
	}
	if cfg.Personas != nil {
		t := NewListPersonasTool(cfg.Personas)
		s.AddTool(t.Definition(), t.Handle)
	}
	if cfg.Router != nil {
		t := NewAdaptMessageTool(cfg.Router)
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

const instructions = `kirabridge gathers the context an assistant needs before it answers a chat message.
Use assemble_context to fetch memories, project data and persona guidance for a query,
list_personas to see which communication styles are available, and adapt_message to
normalize a raw Slack, desktop, Telegram or Discord payload into the canonical schema.`

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
