package persona

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const directProfessional = `name: direct_professional
display_name: Direct Professional
communication_style: direct
tone: professional
traits: [concise, precise, concise]
prompt_overlay: |
  Be concise and precise. Lead with the answer.
description: For status updates
tags: [work]
`

const friendlyCasualJSON = `{
  // comments are allowed
  "name": "friendly_casual",
  "display_name": "Friendly Casual",
  "communication_style": "friendly",
  "tone": "casual",
  "prompt_overlay": "You are a friendly, casual assistant. Be warm and conversational.",
}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newCatalog(t *testing.T, dir string) *Catalog {
	t.Helper()
	c, err := NewCatalog(CatalogConfig{Dir: dir, Logger: testLogger()})
	require.NoError(t, err)
	return c
}

func TestCatalog_LoadYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "direct.yaml", directProfessional)
	writeFile(t, dir, "friendly.json", friendlyCasualJSON)
	writeFile(t, dir, "notes.txt", "ignored")

	c := newCatalog(t, dir)
	require.Equal(t, 2, c.Len())

	def, ok := c.Get("direct_professional")
	require.True(t, ok)
	assert.Equal(t, "Direct Professional", def.DisplayName)
	assert.Equal(t, []string{"concise", "precise"}, def.Traits)
	assert.Equal(t, "Be concise and precise. Lead with the answer.\n", def.PromptOverlay)

	def, ok = c.Get("friendly_casual")
	require.True(t, ok)
	assert.Equal(t, "casual", def.Tone)
}

func TestCatalog_SkipsInvalidRecords(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "direct.yml", directProfessional)
	writeFile(t, dir, "no_overlay.yaml", "name: broken\ndisplay_name: B\ncommunication_style: x\ntone: y\n")
	writeFile(t, dir, "garbage.yaml", "name: [unterminated")
	writeFile(t, dir, "bad.json", "{not json")

	c := newCatalog(t, dir)
	assert.Equal(t, []string{"direct_professional"}, c.Names())
	_, ok := c.Get("broken")
	assert.False(t, ok)
}

func TestCatalog_MissingDirIsEmpty(t *testing.T) {
	c := newCatalog(t, filepath.Join(t.TempDir(), "absent"))
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.List())
}

func TestCatalog_ListSortedByName(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		writeFile(t, dir, n+".yaml", fmt.Sprintf("name: %s\ndisplay_name: %s\ncommunication_style: s\ntone: t\nprompt_overlay: o\n", n, n))
	}
	c := newCatalog(t, dir)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, c.Names())
}

func TestCatalog_NotFound(t *testing.T) {
	c := newCatalog(t, t.TempDir())
	_, ok := c.Get("nonexistent")
	assert.False(t, ok)
}

func TestCatalog_ReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "direct.yaml", directProfessional)
	c := newCatalog(t, dir)
	require.Equal(t, 1, c.Len())

	writeFile(t, dir, "friendly.json", friendlyCasualJSON)
	require.NoError(t, os.Remove(filepath.Join(dir, "direct.yaml")))
	require.NoError(t, c.Reload())

	assert.Equal(t, []string{"friendly_casual"}, c.Names())
}

func writeGeneration(t *testing.T, dir, gen string) {
	t.Helper()
	for i := 0; i < 5; i++ {
		writeFile(t, dir, fmt.Sprintf("p%d.yaml", i), fmt.Sprintf(
			"name: p%d\ndisplay_name: P%d\ncommunication_style: s\ntone: t\nprompt_overlay: %s\n", i, i, gen))
	}
}

// Readers never see personas from two different loads in one listing.
func TestCatalog_ReloadIsAtomic(t *testing.T) {
	defer goleak.VerifyNone(t)

	dirA, dirB := t.TempDir(), t.TempDir()
	writeGeneration(t, dirA, "gen-A")
	writeGeneration(t, dirB, "gen-B")
	writeFile(t, dirB, "extra.yaml", "name: p9\ndisplay_name: P9\ncommunication_style: s\ntone: t\nprompt_overlay: gen-B\n")

	c := newCatalog(t, dirA)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				list := c.List()
				gen := strings.TrimSpace(list[0].PromptOverlay)
				want := 5
				if gen == "gen-B" {
					want = 6
				}
				if len(list) != want {
					errs <- fmt.Sprintf("listing of %s has %d entries", gen, len(list))
					return
				}
				for _, p := range list {
					if strings.TrimSpace(p.PromptOverlay) != gen {
						errs <- "mixed generations in one listing"
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		dir := dirA
		if i%2 == 0 {
			dir = dirB
		}
		require.NoError(t, c.Load(dir))
	}
	close(stop)
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}
