package main

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed personas/*.yaml
var samplePersonas embed.FS

// writeSamplePersonas copies the bundled personas into dir. Existing files
// are kept unless force is set. It returns the number of files written.
func writeSamplePersonas(dir string, force bool) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create personas dir: %w", err)
	}
	entries, err := fs.ReadDir(samplePersonas, "personas")
	if err != nil {
		return 0, err
	}
	written := 0
	for _, e := range entries {
		dst := filepath.Join(dir, e.Name())
		if _, err := os.Stat(dst); err == nil && !force {
			continue
		}
		data, err := samplePersonas.ReadFile("personas/" + e.Name())
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", dst, err)
		}
		written++
	}
	return written, nil
}
