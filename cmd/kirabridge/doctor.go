package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kirabridge/internal/config"
	"kirabridge/internal/memory"
	"kirabridge/internal/persona"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your kirabridge installation",
		Long: `Verifies that the configuration, memory database, persona directory and
channel settings are usable. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("kirabridge doctor v%s\n\n", version)

			var r report

			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'kirabridge init' to create a default configuration.\n")
				return r.summary()
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			if cfg.Memory.Enabled {
				if usage, err := checkDatabase(cfg.Memory.DBPath); err != nil {
					r.fail("Memory database", err.Error())
				} else {
					r.pass("Memory database", cfg.Memory.DBPath+usage)
				}
			} else {
				r.warn("Memory database", "disabled; context falls back to an empty baseline")
			}

			checkPersonas(&r, cfg)

			if cfg.Server.Enabled {
				if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
					r.warn("Server port", fmt.Sprintf("%s:%d may be in use: %v", cfg.Server.Host, cfg.Server.Port, err))
				} else {
					r.pass("Server port", fmt.Sprintf("%s:%d available", cfg.Server.Host, cfg.Server.Port))
				}
			}

			switch {
			case !cfg.OneFlow.Enabled:
				r.warn("OneFlow", "disabled")
			case cfg.OneFlow.Mocked:
				r.warn("OneFlow", "using mocked project data")
			default:
				r.pass("OneFlow", cfg.OneFlow.APIBase)
			}

			if cfg.Agent.Mode == "openai" && cfg.Agent.APIKey == "" {
				r.warn("Agent", "openai mode without agent.apiKey")
			} else {
				r.pass("Agent", cfg.Agent.Mode)
			}

			if cfg.Slack.Enabled {
				if !strings.HasPrefix(cfg.Slack.AppToken, "xapp-") {
					r.warn("Slack", "appToken should be an app-level token (xapp-...)")
				} else {
					r.pass("Slack", "socket mode configured")
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			return r.summary()
		},
	}
}

type report struct {
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-18s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-18s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-18s %s\n", check, detail)
}

func (r *report) summary() error {
	fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

// checkDatabase opens (and migrates) the memory store and reports persona usage.
func checkDatabase(dbPath string) (string, error) {
	store, err := memory.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return "", err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	usage, err := store.PersonaUsage(ctx)
	if err != nil {
		return "", fmt.Errorf("query persona usage: %w", err)
	}
	if len(usage) == 0 {
		return "", nil
	}
	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, usage[name])
	}
	return " (persona use: " + strings.Join(parts, ", ") + ")", nil
}

func checkPersonas(r *report, cfg *config.Config) {
	info, err := os.Stat(cfg.Personas.Dir)
	if err != nil || !info.IsDir() {
		r.fail("Personas", fmt.Sprintf("directory not found: %s", cfg.Personas.Dir))
		return
	}
	catalog, err := persona.NewCatalog(persona.CatalogConfig{Dir: cfg.Personas.Dir, Logger: logger})
	if err != nil {
		r.fail("Personas", err.Error())
		return
	}
	if catalog.Len() == 0 {
		r.warn("Personas", "no valid persona files in "+cfg.Personas.Dir)
	} else {
		r.pass("Personas", fmt.Sprintf("%d loaded (%s)", catalog.Len(), strings.Join(catalog.Names(), ", ")))
	}
	if cfg.Personas.Default != "" {
		if _, ok := catalog.Get(cfg.Personas.Default); !ok {
			r.warn("Default persona", cfg.Personas.Default+" is not in the catalog")
		} else {
			r.pass("Default persona", cfg.Personas.Default)
		}
	}
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}
