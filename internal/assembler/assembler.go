// Package assembler builds the composite context string from registered context sources.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"kirabridge/internal/domain"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const defaultSourceTimeout = 5 * time.Second

// Source and assembly outcome labels reported to the Observer.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeFailed      = "failed"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeFallback    = "fallback"
	OutcomeError       = "error"
)

// Observer receives per-source and per-assembly events.
type Observer interface {
	ObserveSource(source, outcome string, d time.Duration)
	ObserveAssembly(outcome string, d time.Duration)
}

// Config configures an Assembler.
type Config struct {
	Logger        *slog.Logger
	SourceTimeout time.Duration // per source; defaults to 5s
	Sequential    bool          // run sources one after another instead of concurrently
	Baseline      domain.BaselineFunc
	Observer      Observer // optional
}

// Result is one assembly. Contributions follow registration order and include
// skipped sources.
type Result struct {
	Text          string
	Contributions []domain.ContextContribution
	UsedFallback  bool
}

// Succeeded returns the names of sources that contributed without error.
func (r *Result) Succeeded() []string {
	var names []string
	for _, c := range r.Contributions {
		if c.Succeeded {
			names = append(names, c.SourceName)
		}
	}
	return names
}

// Assembler runs an ordered set of context sources. A failing, panicking or
// slow source is recorded and excluded; it never affects the others.
type Assembler struct {
	mu       sync.RWMutex
	sources  []domain.ContextSource
	timeout  time.Duration
	seq      bool
	baseline domain.BaselineFunc
	observer Observer
	logger   *slog.Logger
}

func New(cfg Config) *Assembler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = defaultSourceTimeout
	}
	return &Assembler{
		timeout:  cfg.SourceTimeout,
		seq:      cfg.Sequential,
		baseline: cfg.Baseline,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
}

// Add appends src to the registration order. A source with the same name is
// replaced in place.
func (a *Assembler) Add(src domain.ContextSource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, s := range a.sources {
		if s.Name() == src.Name() {
			a.sources[i] = src
			return
		}
	}
	a.sources = append(a.sources, src)
	a.logger.Debug("registered context source", "source", src.Name())
}

// Remove unregisters the named source.
func (a *Assembler) Remove(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, s := range a.sources {
		if s.Name() == name {
			a.sources = append(a.sources[:i:i], a.sources[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns source names in registration order.
func (a *Assembler) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}
	return names
}

// Assemble queries every available source and concatenates the successful,
// non-empty contributions in registration order. When no source succeeds the
// baseline result becomes the whole context. The only error is a failing
// baseline, which wraps domain.ErrAllSourcesFailed.
func (a *Assembler) Assemble(ctx context.Context, req *domain.ContextRequest) (*Result, error) {
	start := time.Now()
	if req == nil {
		req = &domain.ContextRequest{}
	}

	a.mu.RLock()
	sources := append([]domain.ContextSource(nil), a.sources...)
	a.mu.RUnlock()

	contributions := make([]domain.ContextContribution, len(sources))
	run := func(i int) {
		contributions[i] = a.runOne(ctx, sources[i], req)
	}
	if a.seq {
		for i := range sources {
			run(i)
		}
	} else {
		var g errgroup.Group
		for i := range sources {
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	res := &Result{Contributions: contributions}
	var succeeded, failed []string
	for _, c := range contributions {
		switch {
		case c.Succeeded:
			succeeded = append(succeeded, c.SourceName)
		case !c.Skipped:
			failed = append(failed, c.SourceName)
		}
	}

	if len(succeeded) == 0 {
		text, err := a.fallback(ctx, req)
		res.UsedFallback = true
		res.Text = text
		if err != nil {
			a.observeAssembly(OutcomeError, start)
			a.logger.Error("context assembly failed", "failed", failed, "err", err)
			return res, err
		}
		a.observeAssembly(OutcomeFallback, start)
		a.logger.Info("no context source succeeded, used baseline", "failed", failed, "chars", len(text))
		return res, nil
	}

	res.Text = compose(contributions)
	a.observeAssembly(OutcomeOK, start)
	if len(failed) > 0 {
		a.logger.Warn("some context sources failed", "failed", failed, "succeeded", succeeded)
	}
	a.logger.Debug("assembled context", "sources", succeeded, "chars", len(res.Text))
	return res, nil
}

// Header returns the delimiter line that introduces a source's segment.
func Header(sourceName string) string {
	return "## Context from " + cases.Title(language.English).String(sourceName)
}

func compose(contributions []domain.ContextContribution) string {
	var parts []string
	for _, c := range contributions {
		if !c.Succeeded || strings.TrimSpace(c.Text) == "" {
			continue
		}
		parts = append(parts, Header(c.SourceName), c.Text)
	}
	return strings.Join(parts, "\n\n")
}

type outcome struct {
	text string
	err  error
}

func (a *Assembler) runOne(ctx context.Context, src domain.ContextSource, req *domain.ContextRequest) domain.ContextContribution {
	start := time.Now()
	c := domain.ContextContribution{SourceName: src.Name()}

	available, err := safeAvailable(src)
	if err != nil {
		c.Error = err.Error()
		a.observeSource(c.SourceName, OutcomeFailed, start)
		a.logger.Warn("context source failed", "source", c.SourceName, "err", err)
		return c
	}
	if !available {
		c.Skipped = true
		a.observeSource(c.SourceName, OutcomeUnavailable, start)
		a.logger.Debug("context source unavailable, skipping", "source", c.SourceName)
		return c
	}

	sctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		text, err := src.Context(sctx, req)
		done <- outcome{text: text, err: err}
	}()

	var o outcome
	label := OutcomeFailed
	select {
	case o = <-done:
	case <-sctx.Done():
		o.err = sctx.Err()
		label = OutcomeTimeout
	}

	if o.err != nil {
		if errors.Is(o.err, context.DeadlineExceeded) {
			label = OutcomeTimeout
		}
		c.Error = fmt.Errorf("%w: %s: %w", domain.ErrSourceFailure, c.SourceName, o.err).Error()
		a.observeSource(c.SourceName, label, start)
		a.logger.Warn("context source failed", "source", c.SourceName, "err", o.err, "elapsed", time.Since(start))
		return c
	}

	c.Succeeded = true
	c.Text = o.text
	if strings.TrimSpace(o.text) == "" {
		a.observeSource(c.SourceName, OutcomeEmpty, start)
	} else {
		a.observeSource(c.SourceName, OutcomeOK, start)
	}
	return c
}

func safeAvailable(src domain.ContextSource) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: availability check panicked: %v", domain.ErrSourceFailure, src.Name(), r)
		}
	}()
	return src.Available(), nil
}

func (a *Assembler) fallback(ctx context.Context, req *domain.ContextRequest) (text string, err error) {
	if a.baseline == nil {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: baseline retrieval panicked: %v", domain.ErrAllSourcesFailed, r)
		}
	}()
	text, err = a.baseline(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: baseline retrieval: %w", domain.ErrAllSourcesFailed, err)
	}
	return text, nil
}

func (a *Assembler) observeSource(name, outcome string, start time.Time) {
	if a.observer != nil {
		a.observer.ObserveSource(name, outcome, time.Since(start))
	}
}

func (a *Assembler) observeAssembly(outcome string, start time.Time) {
	if a.observer != nil {
		a.observer.ObserveAssembly(outcome, time.Since(start))
	}
}
