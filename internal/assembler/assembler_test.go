package assembler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"kirabridge/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSource is a configurable context source.
type fakeSource struct {
	name        string
	text        string
	err         error
	delay       time.Duration
	unavailable bool
	panics      bool
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) Available() bool { return !f.unavailable }
func (f *fakeSource) Context(ctx context.Context, req *domain.ContextRequest) (string, error) {
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type recordingObserver struct {
	mu         sync.Mutex
	sources    map[string]string
	assemblies []string
}

func (o *recordingObserver) ObserveSource(source, outcome string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sources == nil {
		o.sources = map[string]string{}
	}
	o.sources[source] = outcome
}

func (o *recordingObserver) ObserveAssembly(outcome string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.assemblies = append(o.assemblies, outcome)
}

func baselineReturning(text string) domain.BaselineFunc {
	return func(ctx context.Context, req *domain.ContextRequest) (string, error) { return text, nil }
}

func newAssembler(cfg Config, sources ...domain.ContextSource) *Assembler {
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	a := New(cfg)
	for _, s := range sources {
		a.Add(s)
	}
	return a
}

func TestAssemble_PartialFailureIsDeterministic(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := newAssembler(Config{Baseline: baselineReturning("baseline")},
		&fakeSource{name: "memory", text: "remembered facts"},
		&fakeSource{name: "oneflow", err: errors.New("api down")},
		&fakeSource{name: "persona", text: "Be direct."},
	)
	req := &domain.ContextRequest{Query: "status"}

	first, err := a.Assemble(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.UsedFallback)
	assert.Equal(t, "## Context from Memory\n\nremembered facts\n\n## Context from Persona\n\nBe direct.", first.Text)
	assert.NotContains(t, first.Text, "Oneflow")

	require.Len(t, first.Contributions, 3)
	assert.False(t, first.Contributions[1].Succeeded)
	assert.Contains(t, first.Contributions[1].Error, "api down")
	assert.Equal(t, []string{"memory", "persona"}, first.Succeeded())

	for i := 0; i < 20; i++ {
		again, err := a.Assemble(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first.Text, again.Text)
	}
}

func TestAssemble_AllUnavailableUsesBaselineExactly(t *testing.T) {
	a := newAssembler(Config{Baseline: baselineReturning("- [fact] baseline memory")},
		&fakeSource{name: "memory", unavailable: true},
		&fakeSource{name: "oneflow", unavailable: true},
	)
	res, err := a.Assemble(context.Background(), &domain.ContextRequest{Query: "q"})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "- [fact] baseline memory", res.Text)
	for _, c := range res.Contributions {
		assert.True(t, c.Skipped)
	}
}

func TestAssemble_NoSourcesUsesBaseline(t *testing.T) {
	a := newAssembler(Config{Baseline: baselineReturning("only baseline")})
	res, err := a.Assemble(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "only baseline", res.Text)
}

func TestAssemble_AllFailedUsesBaseline(t *testing.T) {
	a := newAssembler(Config{Baseline: baselineReturning("fallback text")},
		&fakeSource{name: "a", err: errors.New("x")},
		&fakeSource{name: "b", panics: true},
	)
	res, err := a.Assemble(context.Background(), &domain.ContextRequest{})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "fallback text", res.Text)
	assert.Contains(t, res.Contributions[1].Error, "panic: boom")
}

func TestAssemble_BaselineFailureIsError(t *testing.T) {
	a := newAssembler(Config{Baseline: func(ctx context.Context, req *domain.ContextRequest) (string, error) {
		return "", errors.New("store closed")
	}}, &fakeSource{name: "a", err: errors.New("x")})

	_, err := a.Assemble(context.Background(), &domain.ContextRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAllSourcesFailed)
	assert.Contains(t, err.Error(), "store closed")
}

func TestAssemble_NilBaselineDegradesToEmpty(t *testing.T) {
	a := newAssembler(Config{}, &fakeSource{name: "a", err: errors.New("x")})
	res, err := a.Assemble(context.Background(), &domain.ContextRequest{})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "", res.Text)
}

func TestAssemble_EmptySuccessIsNotFailure(t *testing.T) {
	a := newAssembler(Config{Baseline: baselineReturning("baseline")},
		&fakeSource{name: "persona", text: ""},
		&fakeSource{name: "oneflow", text: "   "},
	)
	res, err := a.Assemble(context.Background(), &domain.ContextRequest{})
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, "", res.Text)
	assert.Equal(t, []string{"persona", "oneflow"}, res.Succeeded())
}

func TestAssemble_OrderFollowsRegistrationNotCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := newAssembler(Config{},
		&fakeSource{name: "first", text: "1", delay: 60 * time.Millisecond},
		&fakeSource{name: "second", text: "2", delay: 30 * time.Millisecond},
		&fakeSource{name: "third", text: "3"},
	)
	res, err := a.Assemble(context.Background(), &domain.ContextRequest{})
	require.NoError(t, err)

	i1 := strings.Index(res.Text, "## Context from First")
	i2 := strings.Index(res.Text, "## Context from Second")
	i3 := strings.Index(res.Text, "## Context from Third")
	require.True(t, i1 >= 0 && i2 >= 0 && i3 >= 0, res.Text)
	assert.True(t, i1 < i2 && i2 < i3, res.Text)
}

func TestAssemble_SequentialMatchesConcurrent(t *testing.T) {
	sources := []domain.ContextSource{
		&fakeSource{name: "memory", text: "m"},
		&fakeSource{name: "oneflow", err: errors.New("down")},
		&fakeSource{name: "persona", text: "p"},
	}
	conc := newAssembler(Config{}, sources...)
	seq := newAssembler(Config{Sequential: true}, sources...)

	r1, err := conc.Assemble(context.Background(), &domain.ContextRequest{})
	require.NoError(t, err)
	r2, err := seq.Assemble(context.Background(), &domain.ContextRequest{})
	require.NoError(t, err)
	assert.Equal(t, r1.Text, r2.Text)
}

func TestAssemble_SlowSourceTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	obs := &recordingObserver{}
	a := newAssembler(Config{SourceTimeout: 30 * time.Millisecond, Observer: obs},
		&fakeSource{name: "slow", text: "late", delay: 5 * time.Second},
		&fakeSource{name: "fast", text: "on time"},
	)

	start := time.Now()
	res, err := a.Assemble(context.Background(), &domain.ContextRequest{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, "## Context from Fast\n\non time", res.Text)
	assert.False(t, res.Contributions[0].Succeeded)
	assert.Contains(t, res.Contributions[0].Error, "deadline exceeded")

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, OutcomeTimeout, obs.sources["slow"])
	assert.Equal(t, OutcomeOK, obs.sources["fast"])
	assert.Equal(t, []string{OutcomeOK}, obs.assemblies)
}

func TestAssembler_RegistrationManagement(t *testing.T) {
	a := newAssembler(Config{},
		&fakeSource{name: "memory", text: "old"},
		&fakeSource{name: "oneflow"},
		&fakeSource{name: "persona"},
	)
	assert.Equal(t, []string{"memory", "oneflow", "persona"}, a.Names())

	a.Add(&fakeSource{name: "memory", text: "new"})
	assert.Equal(t, []string{"memory", "oneflow", "persona"}, a.Names())

	assert.True(t, a.Remove("oneflow"))
	assert.False(t, a.Remove("oneflow"))
	assert.Equal(t, []string{"memory", "persona"}, a.Names())

	res, err := a.Assemble(context.Background(), &domain.ContextRequest{})
	require.NoError(t, err)
	assert.Equal(t, "## Context from Memory\n\nnew", res.Text)
}

func TestHeader_TitleCase(t *testing.T) {
	assert.Equal(t, "## Context from Oneflow", Header("oneflow"))
	assert.Equal(t, "## Context from Memory", Header("memory"))
}
