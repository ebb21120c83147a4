package domain

import "strings"

// PersonaDefinition is one named communication style loaded from the persona directory.
type PersonaDefinition struct {
	Name               string   `yaml:"name" json:"name"`
	DisplayName        string   `yaml:"display_name" json:"display_name"`
	CommunicationStyle string   `yaml:"communication_style" json:"communication_style"`
	Tone               string   `yaml:"tone" json:"tone"`
	Traits             []string `yaml:"traits,omitempty" json:"traits,omitempty"`
	PromptOverlay      string   `yaml:"prompt_overlay" json:"prompt_overlay"`
	Description        string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tags               []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// MissingFields lists the required fields that are empty.
func (p *PersonaDefinition) MissingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("name", p.Name)
	check("display_name", p.DisplayName)
	check("communication_style", p.CommunicationStyle)
	check("tone", p.Tone)
	check("prompt_overlay", p.PromptOverlay)
	return missing
}
