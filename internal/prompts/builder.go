package prompts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholderRE = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// PromptBuilder composes a prompt from a registered template, extra
// fragments and {{name}} variables.
type PromptBuilder struct {
	basePrompt *Prompt
	fragments  []string
	variables  map[string]string
}

// NewPromptBuilder creates a new prompt builder based on a registered prompt.
func NewPromptBuilder(registry *PromptRegistry, id string, version PromptVersion) (*PromptBuilder, error) {
	basePrompt, err := registry.Get(id, version)
	if err != nil {
		return nil, fmt.Errorf("failed to get base prompt: %w", err)
	}

	return &PromptBuilder{
		basePrompt: basePrompt,
		fragments:  []string{basePrompt.Content},
		variables:  make(map[string]string),
	}, nil
}

// AddFragment appends a fragment to the prompt. Empty fragments are ignored.
func (b *PromptBuilder) AddFragment(text string) *PromptBuilder {
	if strings.TrimSpace(text) != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

// SetVariable sets a variable for template substitution.
func (b *PromptBuilder) SetVariable(key, value string) *PromptBuilder {
	b.variables[key] = value
	return b
}

// Build joins the fragments and substitutes variables in one pass, so
// values containing "{{...}}" are never expanded again. It fails when a
// placeholder has no value.
func (b *PromptBuilder) Build() (string, error) {
	joined := strings.Join(b.fragments, "\n\n")

	var missing []string
	result := placeholderRE.ReplaceAllStringFunc(joined, func(m string) string {
		key := placeholderRE.FindStringSubmatch(m)[1]
		value, ok := b.variables[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		return value
	})

	if len(missing) > 0 {
		sort.Strings(missing)
		id := ""
		if b.basePrompt != nil {
			id = b.basePrompt.ID
		}
		return "", fmt.Errorf("prompt %s: unresolved variables: %s", id, strings.Join(missing, ", "))
	}
	return result, nil
}
