package source

import (
	"context"
	"log/slog"
	"strings"

	"kirabridge/internal/domain"
)

// PersonaResolver is the read side of the persona catalog.
type PersonaResolver interface {
	Get(name string) (domain.PersonaDefinition, bool)
	Len() int
}

// Persona contributes the requested persona's prompt overlay verbatim.
// An unset or unknown persona is a valid default and yields an empty contribution.
type Persona struct {
	catalog        PersonaResolver
	defaultPersona string
	logger         *slog.Logger
}

func NewPersona(catalog PersonaResolver, defaultPersona string, logger *slog.Logger) *Persona {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persona{catalog: catalog, defaultPersona: defaultPersona, logger: logger}
}

func (p *Persona) Name() string { return "persona" }

// Available reports whether any persona is loaded.
func (p *Persona) Available() bool { return p.catalog != nil && p.catalog.Len() > 0 }

func (p *Persona) Context(ctx context.Context, req *domain.ContextRequest) (string, error) {
	name := req.Persona
	if name == "" {
		name = p.defaultPersona
	}
	if name == "" {
		return "", nil
	}
	def, ok := p.catalog.Get(name)
	if !ok {
		p.logger.Warn("persona not found", "persona", name, "err", domain.ErrPersonaNotFound)
		return "", nil
	}
	return strings.TrimSpace(def.PromptOverlay), nil
}
