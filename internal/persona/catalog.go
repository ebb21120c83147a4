// Package persona loads persona definitions and composes them into system prompts.
package persona

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"kirabridge/internal/domain"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// CatalogConfig configures a Catalog.
type CatalogConfig struct {
	Dir    string
	Logger *slog.Logger
}

// snapshot is one complete load. It is never modified after publication.
type snapshot struct {
	byName map[string]domain.PersonaDefinition
	sorted []domain.PersonaDefinition
	dir    string
}

// Catalog serves persona definitions. Readers always see one whole load:
// Reload builds a fresh snapshot and swaps it in.
type Catalog struct {
	loadMu sync.Mutex // serializes Load/Reload
	snap   atomic.Pointer[snapshot]
	logger *slog.Logger
}

// NewCatalog creates a catalog and loads cfg.Dir when set.
func NewCatalog(cfg CatalogConfig) (*Catalog, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{logger: logger}
	c.snap.Store(&snapshot{byName: map[string]domain.PersonaDefinition{}})
	if cfg.Dir != "" {
		if err := c.Load(cfg.Dir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Load reads every *.yaml, *.yml and *.json record in dir and replaces the catalog.
// Invalid records are skipped with a warning. A missing directory yields an empty
// catalog. On a directory read error the previous catalog stays in place.
func (c *Catalog) Load(dir string) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	next, err := c.read(dir)
	if err != nil {
		return err
	}
	c.snap.Store(next)
	c.logger.Info("loaded personas", "count", len(next.sorted), "dir", dir)
	return nil
}

// Reload re-reads the directory of the last Load.
func (c *Catalog) Reload() error {
	return c.Load(c.Dir())
}

// Dir returns the directory of the current snapshot.
func (c *Catalog) Dir() string {
	return c.snap.Load().dir
}

// Get resolves a persona by name.
func (c *Catalog) Get(name string) (domain.PersonaDefinition, bool) {
	def, ok := c.snap.Load().byName[name]
	return def, ok
}

// List returns all personas sorted by name.
func (c *Catalog) List() []domain.PersonaDefinition {
	s := c.snap.Load()
	out := make([]domain.PersonaDefinition, len(s.sorted))
	copy(out, s.sorted)
	return out
}

// Names returns the persona names sorted.
func (c *Catalog) Names() []string {
	s := c.snap.Load()
	names := make([]string, 0, len(s.sorted))
	for _, p := range s.sorted {
		names = append(names, p.Name)
	}
	return names
}

func (c *Catalog) Len() int {
	return len(c.snap.Load().sorted)
}

func (c *Catalog) read(dir string) (*snapshot, error) {
	next := &snapshot{byName: map[string]domain.PersonaDefinition{}, dir: dir}
	if dir == "" {
		return next, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		c.logger.Warn("personas directory not found", "dir", dir)
		return next, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read personas dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !IsPersonaFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := readFile(path)
		if err != nil {
			c.logger.Warn("skipping persona file", "path", path, "err", err)
			continue
		}
		if prev, dup := next.byName[def.Name]; dup {
			c.logger.Warn("duplicate persona name, later file wins", "name", def.Name, "path", path, "previous", prev.DisplayName)
		}
		next.byName[def.Name] = def
		c.logger.Debug("loaded persona", "name", def.Name, "path", path)
	}

	next.sorted = make([]domain.PersonaDefinition, 0, len(next.byName))
	for _, def := range next.byName {
		next.sorted = append(next.sorted, def)
	}
	sort.Slice(next.sorted, func(i, j int) bool { return next.sorted[i].Name < next.sorted[j].Name })
	return next, nil
}

// IsPersonaFile reports whether name has a persona record extension.
func IsPersonaFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func readFile(path string) (domain.PersonaDefinition, error) {
	var def domain.PersonaDefinition
	data, err := os.ReadFile(path)
	if err != nil {
		return def, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(jsonc.ToJSON(data), &def)
	} else {
		err = yaml.Unmarshal(data, &def)
	}
	if err != nil {
		return def, fmt.Errorf("parse: %w", err)
	}
	if missing := def.MissingFields(); len(missing) > 0 {
		return def, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	def.Traits = domain.UniqueIDs(def.Traits)
	def.Tags = domain.UniqueIDs(def.Tags)
	return def, nil
}
