package persona

import (
	"strings"

	"kirabridge/internal/domain"
)

// InjectOverlay appends the persona's prompt overlay to base. The overlay is
// always appended, never prepended. A nil persona returns base unchanged.
func InjectOverlay(base string, def *domain.PersonaDefinition) string {
	if def == nil {
		return base
	}
	overlay := strings.TrimSpace(def.PromptOverlay)
	if overlay == "" {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n## Persona Configuration\n<persona>\n")
	b.WriteString(overlay)
	b.WriteString("\n</persona>")
	return b.String()
}

// Compose resolves name in the catalog and injects its overlay. Unset or
// unknown names return base; unknown names are logged.
func (c *Catalog) Compose(base, name string) (string, bool) {
	if name == "" {
		return base, false
	}
	def, ok := c.Get(name)
	if !ok {
		c.logger.Warn("persona not found, using base prompt", "persona", name)
		return base, false
	}
	return InjectOverlay(base, &def), true
}
