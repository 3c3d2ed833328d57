package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/ensemble/internal/engine"
	"github.com/ChamsBouzaiene/ensemble/internal/prompts"
)

// Titler asks the model for a short session title.
type Titler struct {
	llm      engine.LLMClient
	model    string
	registry *prompts.PromptRegistry
}

// NewTitler creates a new session titler.
func NewTitler(llm engine.LLMClient, model string) *Titler {
	return &Titler{
		llm:      llm,
		model:    model,
		registry: prompts.DefaultRegistry(),
	}
}

// GenerateTitle returns a three to six word title for the scenario.
func (t *Titler) GenerateTitle(ctx context.Context, scenario string) (string, error) {
	if strings.TrimSpace(scenario) == "" {
		return DefaultTitle(now()), nil
	}

	userPrompt, err := t.registry.Render(prompts.IDTitle, map[string]string{"scenario": excerpt(scenario, 600)})
	if err != nil {
		return "", err
	}

	resp, err := t.llm.Chat(ctx, t.model, []engine.ChatMessage{
		{Role: engine.RoleUser, Content: userPrompt},
	}, engine.ChatOptions{
		MaxOutputTokens: 20,
		Temperature:     0.3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}

	title := strings.Trim(strings.TrimSpace(resp.Assistant.Content), "\"'“”«».")
	if line, _, ok := strings.Cut(title, "\n"); ok {
		title = strings.TrimSpace(line)
	}
	if title == "" {
		return DefaultTitle(now()), nil
	}
	return title, nil
}

// TitleOrDefault names sess from its scenario, keeping the default title
// when the model fails.
func (t *Titler) TitleOrDefault(ctx context.Context, sess *Session) string {
	title, err := t.GenerateTitle(ctx, sess.Scenario)
	if err != nil || title == "" {
		return sess.Title
	}
	sess.Title = title
	sess.touch()
	return title
}
