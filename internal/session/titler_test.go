package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/ensemble/internal/engine"
)

// MockLLM is a simple mock for the LLMClient interface.
type MockLLM struct {
	Response string
	Err      error
	Prompt   string
}

func (m *MockLLM) Chat(ctx context.Context, model string, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
	if len(messages) > 0 {
		m.Prompt = messages[len(messages)-1].Content
	}
	if m.Err != nil {
		return engine.LLMResponse{}, m.Err
	}
	return engine.LLMResponse{
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: m.Response},
	}, nil
}

func TestTitler_GenerateTitle(t *testing.T) {
	mock := &MockLLM{Response: "\"The Vanished Jewel\"\n"}
	titler := NewTitler(mock, "test-model")

	title, err := titler.GenerateTitle(context.Background(), "A jewel vanished from the castle vault.")
	if err != nil {
		t.Fatalf("GenerateTitle failed: %v", err)
	}
	if title != "The Vanished Jewel" {
		t.Errorf("Expected title 'The Vanished Jewel', got '%s'", title)
	}
	if !strings.Contains(mock.Prompt, "castle vault") {
		t.Errorf("prompt does not carry the scenario: %q", mock.Prompt)
	}
}

func TestTitler_EmptyScenario(t *testing.T) {
	titler := NewTitler(&MockLLM{Err: errors.New("should not be called")}, "test-model")
	title, err := titler.GenerateTitle(context.Background(), "  ")
	if err != nil || !strings.HasPrefix(title, "New scene ") {
		t.Errorf("GenerateTitle(empty) = %q, %v", title, err)
	}
}

func TestTitler_TitleOrDefault(t *testing.T) {
	sess := New("A heist.", "Detective")
	original := sess.Title

	failing := NewTitler(&MockLLM{Err: errors.New("rate limited")}, "test-model")
	if got := failing.TitleOrDefault(context.Background(), sess); got != original || sess.Title != original {
		t.Errorf("failure should keep default title, got %q", got)
	}

	working := NewTitler(&MockLLM{Response: "Midnight Heist"}, "test-model")
	if got := working.TitleOrDefault(context.Background(), sess); got != "Midnight Heist" || sess.Title != "Midnight Heist" {
		t.Errorf("TitleOrDefault() = %q", got)
	}
}
