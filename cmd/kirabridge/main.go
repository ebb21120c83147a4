package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"kirabridge/internal/config"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "kirabridge",
		Short: "kirabridge: chat message adaptation and context assembly",
		Long: "kirabridge turns Slack, desktop, web, Telegram and Discord messages into one canonical " +
			"schema, gathers context for them from memories, project data and personas, and hands " +
			"the result to a downstream agent.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.kirabridge/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(contextCmd())
	root.AddCommand(personasCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config (defaults when the file is missing) and
// reconfigures the logger from it.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	l, err := newLogger(cfg.General)
	if err != nil {
		return nil, err
	}
	logger = l
	return cfg, nil
}

// newLogger builds the process logger: text on stderr, mirrored to the log
// file when one is configured.
func newLogger(g config.GeneralConfig) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(g.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if g.LogFile != "" {
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and the sample personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err == nil && !force {
				logger.Info("config already exists, keeping it", "config", cfgPath)
			} else {
				if err := config.Save(cfgPath, config.Defaults()); err != nil {
					return err
				}
				logger.Info("wrote config", "config", cfgPath)
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			n, err := writeSamplePersonas(cfg.Personas.Dir, force)
			if err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "personas_dir", cfg.Personas.Dir, "personas_written", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config and sample personas")
	return cmd
}

func contextCmd() *cobra.Command {
	var persona string
	var details bool
	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Assemble and print the context for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.assembleQuery(cmd.Context(), args[0], persona)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if strings.TrimSpace(res.Text) == "" {
				fmt.Fprintln(out, "(no context)")
			} else {
				fmt.Fprintln(out, res.Text)
			}
			if details {
				fmt.Fprintln(out)
				for _, c := range res.Contributions {
					state := "ok"
					switch {
					case c.Skipped:
						state = "unavailable"
					case !c.Succeeded:
						state = "failed: " + c.Error
					}
					fmt.Fprintf(out, "  %-10s %s\n", c.SourceName, state)
				}
				if res.UsedFallback {
					fmt.Fprintln(out, "  (baseline fallback used)")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&persona, "persona", "p", "", "persona name (default: personas.default)")
	cmd.Flags().BoolVar(&details, "details", false, "print per-source outcomes")
	return cmd
}

func personasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "personas",
		Short: "Inspect the persona catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			catalog, err := newCatalog(cfg, logger)
			if err != nil {
				return err
			}
			return printPersonas(cmd.OutOrStdout(), catalog.List(), cfg.Personas.Default)
		},
	})
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. personas.default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. agent.mode openai)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			for _, p := range config.SortedPaths(paths) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", p, paths[p])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kirabridge v%s\n", version)
		},
	}
}

