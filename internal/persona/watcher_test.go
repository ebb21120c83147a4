package persona

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	writeFile(t, dir, "direct.yaml", directProfessional)
	c := newCatalog(t, dir)

	w := NewWatcher(WatcherConfig{Catalog: c, Logger: testLogger(), Debounce: 20 * time.Millisecond})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, dir, "friendly.json", friendlyCasualJSON)

	require.Eventually(t, func() bool { return c.Len() == 2 }, 5*time.Second, 20*time.Millisecond)
	_, ok := c.Get("friendly_casual")
	assert.True(t, ok)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := newCatalog(t, t.TempDir())
	w := NewWatcher(WatcherConfig{Catalog: c, Logger: testLogger()})
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestWatcher_RequiresDirectory(t *testing.T) {
	c, err := NewCatalog(CatalogConfig{Logger: testLogger()})
	require.NoError(t, err)
	w := NewWatcher(WatcherConfig{Catalog: c, Logger: testLogger()})
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_CancelReleasesWatcher(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := newCatalog(t, t.TempDir())
	w := NewWatcher(WatcherConfig{Catalog: c, Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	cancel()
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return !w.running
	}, 5*time.Second, 10*time.Millisecond)

	// The watcher can be started again after the first context ends.
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}
