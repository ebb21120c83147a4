package oneflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"kirabridge/internal/httpclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMock_KeywordSections(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	got, err := m.Fetch(ctx, Query{Text: "What TASKS are in progress?"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "## OneFlow Tasks (Mocked)\n- Task: Implement enhanced context injection (in-progress)"))
	assert.NotContains(t, got, "Projects")

	got, _ = m.Fetch(ctx, Query{Text: "which project has the new feature, and who is on the team"})
	assert.Contains(t, got, "## OneFlow Projects (Mocked)")
	assert.Contains(t, got, "## OneFlow Users (Mocked)")
	assert.Less(t, strings.Index(got, "Projects"), strings.Index(got, "Users"))

	got, _ = m.Fetch(ctx, Query{Text: "hello"})
	assert.Equal(t, "", got)
}

func TestMock_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMock().Fetch(ctx, Query{Text: "task"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTP_FetchRendersSections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/context", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "status of billing", r.URL.Query().Get("q"))
		assert.Equal(t, "U1", r.URL.Query().Get("user_id"))
		json.NewEncoder(w).Encode(map[string]any{
			"tasks":    []map[string]string{{"title": "Fix invoices", "status": "blocked"}},
			"projects": []map[string]string{{"name": "Billing"}},
		})
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{APIBase: srv.URL + "/v1/", APIKey: "secret", Timeout: time.Second, Logger: testLogger()})
	require.True(t, h.Available())

	got, err := h.Fetch(context.Background(), Query{Text: "status of billing", UserID: "U1"})
	require.NoError(t, err)
	assert.Equal(t, "## OneFlow Tasks\n- Task: Fix invoices (blocked)\n## OneFlow Projects\n- Project: Billing", got)
}

func TestHTTP_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger(),
		Retry: httpclient.RetryPolicy{MaxRetries: 0, Base: time.Millisecond}})
	_, err := h.Fetch(context.Background(), Query{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestHTTP_NotConfigured(t *testing.T) {
	assert.False(t, NewHTTP(HTTPConfig{}).Available())
}
