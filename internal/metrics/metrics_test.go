package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Observers(t *testing.T) {
	m := New()

	m.ObserveAdapt("slack", "ok")
	m.ObserveAdapt("slack", "ok")
	m.ObserveAdapt("", "not_found")
	m.ObserveSource("memory", "failed", 10*time.Millisecond)
	m.ObserveAssembly("fallback", time.Millisecond)
	m.ObserveRequest("web", "ok", time.Millisecond)
	m.ObservePersonaReload(3, nil)
	m.ObservePersonaReload(3, errors.New("bad dir"))

	out := scrape(t, m)
	assert.Contains(t, out, `kirabridge_adapt_total{outcome="ok",source_tag="slack"} 2`)
	assert.Contains(t, out, `kirabridge_adapt_total{outcome="not_found",source_tag="unknown"} 1`)
	assert.Contains(t, out, `kirabridge_context_source_total{outcome="failed",source="memory"} 1`)
	assert.Contains(t, out, `kirabridge_context_assembly_total{outcome="fallback"} 1`)
	assert.Contains(t, out, `kirabridge_requests_total{source_tag="web",status="ok"} 1`)
	assert.Contains(t, out, "kirabridge_personas_loaded 3")
	assert.Contains(t, out, `kirabridge_persona_reloads_total{status="error"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveAdapt("web", "ok")
	assert.NotContains(t, scrape(t, b), `kirabridge_adapt_total{outcome="ok",source_tag="web"}`)
}
