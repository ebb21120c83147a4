package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"kirabridge/internal/adapter"
	"kirabridge/internal/agent"
	"kirabridge/internal/assembler"
	"kirabridge/internal/config"
	"kirabridge/internal/domain"
	"kirabridge/internal/memory"
	"kirabridge/internal/metrics"
	"kirabridge/internal/oneflow"
	"kirabridge/internal/persona"
	"kirabridge/internal/source"
)

// app holds the components shared by serve, context and mcp.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	router    *adapter.Router
	store     *memory.SQLiteStore // nil when memory is disabled
	catalog   *persona.Catalog
	assembler *assembler.Assembler
	pipeline  *agent.Pipeline
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	a.router = adapter.NewDefaultRouter(adapter.RouterConfig{Logger: logger, Observer: a.metrics})

	catalog, err := newCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.catalog = catalog
	a.metrics.PersonasLoaded.Set(float64(catalog.Len()))

	var baseline domain.BaselineFunc
	var retriever *memory.Retriever
	if cfg.Memory.Enabled {
		store, err := memory.NewSQLiteStore(cfg.Memory.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		a.store = store
		retriever = memory.NewRetriever(memory.RetrieverConfig{Store: store, Limit: cfg.Memory.SearchLimit, Logger: logger})
		baseline = retriever.Baseline
	}

	a.assembler = assembler.New(assembler.Config{
		Logger:        logger,
		SourceTimeout: time.Duration(cfg.Assembler.SourceTimeoutMs) * time.Millisecond,
		Sequential:    !cfg.Assembler.Concurrent,
		Baseline:      baseline,
		Observer:      a.metrics,
	})
	if retriever != nil {
		a.assembler.Add(source.NewMemory(retriever, logger))
	}
	if p := newOneFlow(cfg.OneFlow, logger); p != nil {
		a.assembler.Add(source.NewOneFlow(p))
	}
	a.assembler.Add(source.NewPersona(catalog, cfg.Personas.Default, logger))

	pcfg := agent.PipelineConfig{
		Router:         a.router,
		Assembler:      a.assembler,
		Personas:       catalog,
		Agent:          newAgent(cfg.Agent, logger),
		BasePrompt:     cfg.General.BasePrompt,
		DefaultPersona: cfg.Personas.Default,
		Observer:       a.metrics,
		Logger:         logger,
	}
	if a.store != nil {
		pcfg.Usage = a.store
		if cfg.Memory.Extract {
			pcfg.Memorizer = memory.NewMemorizer(a.store, logger)
		}
	}
	a.pipeline, err = agent.NewPipeline(pcfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Debug("app ready", "sources", a.assembler.Names(), "adapters", a.router.Tags(), "personas", catalog.Len())
	return a, nil
}

func newCatalog(cfg *config.Config, logger *slog.Logger) (*persona.Catalog, error) {
	catalog, err := persona.NewCatalog(persona.CatalogConfig{Dir: cfg.Personas.Dir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("persona catalog: %w", err)
	}
	if cfg.Personas.Default != "" {
		if _, ok := catalog.Get(cfg.Personas.Default); !ok {
			logger.Warn("default persona not found", "persona", cfg.Personas.Default, "dir", cfg.Personas.Dir)
		}
	}
	return catalog, nil
}

// newOneFlow returns the configured provider, or nil when the source is off.
func newOneFlow(cfg config.OneFlowConfig, logger *slog.Logger) oneflow.Provider {
	switch {
	case !cfg.Enabled:
		return nil
	case cfg.Mocked:
		return oneflow.NewMock()
	default:
		return oneflow.NewHTTP(oneflow.HTTPConfig{
			APIBase: cfg.APIBase,
			APIKey:  cfg.APIKey,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})
	}
}

// newAgent returns the downstream agent; nil selects the pipeline's context agent.
func newAgent(cfg config.AgentConfig, logger *slog.Logger) domain.Agent {
	if strings.ToLower(cfg.Mode) != "openai" {
		return nil
	}
	return agent.NewOpenAI(agent.OpenAIConfig{
		APIBase:       cfg.APIBase,
		APIKey:        cfg.APIKey,
		Model:         cfg.Model,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		Timeout:       time.Duration(cfg.TimeoutSecs) * time.Second,
		RatePerMinute: cfg.RatePerMinute,
		Logger:        logger,
	})
}

// assembleQuery runs the assembler for a free-standing query, outside any chat.
func (a *app) assembleQuery(ctx context.Context, query, personaName string) (*assembler.Result, error) {
	if personaName == "" {
		personaName = a.cfg.Personas.Default
	}
	msg, err := domain.NewCanonicalMessage(domain.MessageFields{
		UserID:    "cli-user",
		Text:      query,
		ChannelID: "cli",
		SourceTag: "cli",
	})
	if err != nil {
		return nil, err
	}
	return a.assembler.Assemble(ctx, &domain.ContextRequest{Query: query, Message: msg, Persona: personaName})
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("memory store close failed", "err", err)
		}
	}
}

func printPersonas(w io.Writer, defs []domain.PersonaDefinition, defaultName string) error {
	if len(defs) == 0 {
		_, err := fmt.Fprintln(w, "No personas loaded. Run 'kirabridge init' to install the samples.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDISPLAY NAME\tSTYLE\tTONE\tTRAITS")
	for _, d := range defs {
		name := d.Name
		if name == defaultName {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, d.DisplayName, d.CommunicationStyle, d.Tone, strings.Join(d.Traits, ", "))
	}
	return tw.Flush()
}
