// Package skill loads named prompt templates (system prompt, user prompt,
// model, temperature, version) and performs placeholder substitution. Every
// generation step in the pipeline resolves its prompts through a Store.
package skill

import (
	"fmt"
	"strings"
)

// Skill is a named, versioned prompt template bundle. Immutable at runtime.
type Skill struct {
	Name         string
	Description  string
	Version      string
	Model        string
	Temperature  float32
	SystemPrompt string
	UserPrompt   string
}

// Store looks up skills by name. FindByName returns (nil, nil) for an
// unknown name; callers decide whether a missing skill is fatal.
type Store interface {
	FindByName(name string) (*Skill, error)
	FindAll() ([]*Skill, error)
}

// Require resolves a skill that the caller cannot work without. A missing
// skill is a deployment error, so the returned message names it.
func Require(s Store, name string) (*Skill, error) {
	sk, err := s.FindByName(name)
	if err != nil {
		return nil, fmt.Errorf("load skill %q: %w", name, err)
	}
	if sk == nil {
		return nil, fmt.Errorf("skill %q not found", name)
	}
	return sk, nil
}

// InjectContext replaces every {{key}} placeholder in template with the
// value from ctx. Placeholders without a matching key are left verbatim.
func InjectContext(template string, ctx map[string]string) string {
	result := template
	for key, value := range ctx {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}
