package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Trait is one personality profile, keyed by role. The persona text is
// spliced into every oracle prompt; Aims are standing objectives folded
// into the persona rather than seeded onto the goal stack, which only goal
// generation writes.
type Trait struct {
	Role        string   `yaml:"role"`
	Persona     string   `yaml:"persona"`
	Temperature float64  `yaml:"temperature"`
	Aims        []string `yaml:"aims"`
}

// TraitSet is the contents of a traits.yaml file.
type TraitSet struct {
	Traits []Trait `yaml:"traits"`
}

func LoadTraits(path string) (TraitSet, error) {
	var ts TraitSet
	raw, err := os.ReadFile(path)
	if err != nil {
		return ts, err
	}
	if err := yaml.Unmarshal(raw, &ts); err != nil {
		return ts, fmt.Errorf("traits.yaml: %w", err)
	}
	return ts, nil
}

// ForRole returns the profile for role. Unknown roles get a neutral
// survivor profile so every agent has a workable persona.
func (ts TraitSet) ForRole(role string) Trait {
	for _, t := range ts.Traits {
		if t.Role == role {
			return t
		}
	}
	return Trait{
		Role:    role,
		Persona: "You are a cautious generalist. Stay alive and keep a stock of useful materials.",
	}
}

// personaFor renders the prompt persona for one named agent.
func personaFor(name string, t Trait) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your name is %s.", name)
	if t.Persona != "" {
		b.WriteString(" ")
		b.WriteString(t.Persona)
	}
	if len(t.Aims) > 0 {
		b.WriteString(" Standing aims: ")
		b.WriteString(strings.Join(t.Aims, "; "))
		b.WriteString(".")
	}
	return b.String()
}
