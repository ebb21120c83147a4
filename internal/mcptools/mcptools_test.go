package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"kirabridge/internal/adapter"
	"kirabridge/internal/assembler"
	"kirabridge/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// echoSource reports the request it saw.
type echoSource struct {
	name string
	err  error
	seen *domain.ContextRequest
}

func (s *echoSource) Name() string    { return s.name }
func (s *echoSource) Available() bool { return true }
func (s *echoSource) Context(_ context.Context, req *domain.ContextRequest) (string, error) {
	s.seen = req
	if s.err != nil {
		return "", s.err
	}
	return "persona=" + req.Persona + " user=" + req.Message.UserID, nil
}

type staticLister []domain.PersonaDefinition

func (l staticLister) List() []domain.PersonaDefinition { return l }

func newAssembler(baseline domain.BaselineFunc, sources ...domain.ContextSource) *assembler.Assembler {
	a := assembler.New(assembler.Config{Logger: testLogger(), Baseline: baseline})
	for _, s := range sources {
		a.Add(s)
	}
	return a
}

func TestAssembleContextTool_Definition(t *testing.T) {
	def := NewAssembleContextTool(newAssembler(nil), "").Definition()
	assert.Equal(t, "assemble_context", def.Name)
	assert.Contains(t, def.InputSchema.Properties, "query")
	assert.Contains(t, def.InputSchema.Properties, "persona")
	assert.Equal(t, []string{"query"}, def.InputSchema.Required)
}

func TestAssembleContextTool_Handle(t *testing.T) {
	src := &echoSource{name: "memory"}
	tool := NewAssembleContextTool(newAssembler(nil, src), "direct_professional")

	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"query": "what's due?", "user_id": "U1"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "## Context from Memory\n\npersona=direct_professional user=U1", resultText(res))
	assert.Equal(t, "what's due?", src.seen.Query)
	assert.Equal(t, "mcp", src.seen.Message.ChannelID)

	res, err = tool.Handle(context.Background(), makeReq(map[string]any{"query": "hi", "persona": "friendly_casual", "details": true}))
	require.NoError(t, err)
	text := resultText(res)
	assert.Contains(t, text, "persona=friendly_casual user=mcp-user")
	assert.Contains(t, text, "- memory: ")
}

func TestAssembleContextTool_FallbackAndDetails(t *testing.T) {
	failing := &echoSource{name: "oneflow", err: errors.New("connection refused")}
	baseline := func(context.Context, *domain.ContextRequest) (string, error) { return "", nil }
	tool := NewAssembleContextTool(newAssembler(baseline, failing), "")

	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"query": "hi", "details": true}))
	require.NoError(t, err)
	text := resultText(res)
	assert.Contains(t, text, "No context found for this query.")
	assert.Contains(t, text, "fallback: baseline memory retrieval")
	assert.Contains(t, text, "- oneflow: failed")
}

func TestAssembleContextTool_Errors(t *testing.T) {
	baseline := func(context.Context, *domain.ContextRequest) (string, error) { return "", errors.New("db locked") }
	tool := NewAssembleContextTool(newAssembler(baseline), "")

	res, err := tool.Handle(context.Background(), makeReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tool.Handle(context.Background(), makeReq(map[string]any{"query": "hi"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "db locked")
}

func TestListPersonasTool(t *testing.T) {
	tool := NewListPersonasTool(staticLister{
		{Name: "direct_professional", DisplayName: "Direct Professional", CommunicationStyle: "direct", Tone: "professional", Traits: []string{"concise", "clear"}, PromptOverlay: "Be brief."},
	})
	assert.Equal(t, "list_personas", tool.Definition().Name)

	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"include_overlay": true}))
	require.NoError(t, err)
	text := resultText(res)
	assert.Contains(t, text, "1 personas:")
	assert.Contains(t, text, "- direct_professional (Direct Professional): direct, professional [concise, clear]")
	assert.Contains(t, text, "    Be brief.")

	empty, err := NewListPersonasTool(staticLister{}).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.Equal(t, "No personas loaded.", resultText(empty))
}

func TestAdaptMessageTool(t *testing.T) {
	tool := NewAdaptMessageTool(adapter.NewDefaultRouter(adapter.RouterConfig{Logger: testLogger()}))
	assert.Equal(t, "adapt_message", tool.Definition().Name)

	tests := []struct {
		name    string
		payload any
	}{
		{"object", map[string]any{"user": "U1", "channel": "C1", "text": "hello", "ts": "1.2"}},
		{"json string", `{"user":"U1","channel":"C1","text":"hello","ts":"1.2"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(map[string]any{"payload": tt.payload}))
			require.NoError(t, err)
			require.False(t, res.IsError, resultText(res))

			var out adaptResult
			require.NoError(t, json.Unmarshal([]byte(resultText(res)), &out))
			assert.Equal(t, "hello", out.MessageData.Text)
			assert.Equal(t, "hello", out.MessageData.UserText)
			assert.Equal(t, adapter.SlackTag, out.MessageData.Source)
			assert.Equal(t, "C1", out.SlackData.Channel.ChannelID)
		})
	}
}

func TestAdaptMessageTool_Rejections(t *testing.T) {
	tool := NewAdaptMessageTool(adapter.NewDefaultRouter(adapter.RouterConfig{Logger: testLogger()}))

	for name, args := range map[string]map[string]any{
		"missing payload": {},
		"not an object":   {"payload": "[1,2]"},
		"unknown tag":     {"payload": map[string]any{"text": "hi"}, "source": "fax"},
		"undetectable":    {"payload": map[string]any{"foo": "bar"}},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
}

func TestNewServer_RegistersConfiguredTools(t *testing.T) {
	s := NewServer(ServerConfig{
		Version:   "test",
		Assembler: newAssembler(nil),
		Personas:  staticLister{},
		Router:    adapter.NewDefaultRouter(adapter.RouterConfig{Logger: testLogger()}),
	})
	require.NotNil(t, s)
	assert.Len(t, s.ListTools(), 3)

	partial := NewServer(ServerConfig{Version: "test", Personas: staticLister{}})
	assert.Len(t, partial.ListTools(), 1)
}
