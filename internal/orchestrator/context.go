package orchestrator

import (
	"fmt"

	"github.com/ChamsBouzaiene/ensemble/internal/engine"
	"github.com/ChamsBouzaiene/ensemble/internal/persona"
	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

// systemPrompt returns the agent's persona prompt, rendering the fallback
// persona for agents that were never synthesized.
func (o *Orchestrator) systemPrompt(s *session.Session, a *session.Agent) (string, error) {
	if a.Synthesized() {
		return a.SystemPrompt, nil
	}
	req, err := s.PersonaRequest(a.Name, persona.ToneNeutral)
	if err != nil {
		return "", err
	}
	return persona.Render(o.registry, req, persona.Fallback(a.Name, s.UserRole))
}

// messages assembles one request: the persona prompt, the window mapped
// onto chat roles, and the round instruction. The agent's own entries are
// assistant turns; everyone else speaks as a named user turn.
func (o *Orchestrator) messages(s *session.Session, a *session.Agent, window []session.Entry, instruction string) ([]engine.ChatMessage, error) {
	system, err := o.systemPrompt(s, a)
	if err != nil {
		return nil, err
	}

	msgs := make([]engine.ChatMessage, 0, len(window)+2)
	msgs = append(msgs, engine.ChatMessage{Role: engine.RoleSystem, Content: system})
	for _, e := range window {
		if e.Speaker == a.Name {
			msgs = append(msgs, engine.ChatMessage{Role: engine.RoleAssistant, Content: e.Text})
			continue
		}
		msgs = append(msgs, engine.ChatMessage{Role: engine.RoleUser, Content: fmt.Sprintf("%s: %s", e.Speaker, e.Text)})
	}
	msgs = append(msgs, engine.ChatMessage{Role: engine.RoleUser, Content: instruction})
	return o.fit(msgs), nil
}

// fit drops the oldest history messages while the request is over
// MaxContextTokens. The system prompt and the instruction always stay.
func (o *Orchestrator) fit(msgs []engine.ChatMessage) []engine.ChatMessage {
	if o.opts.MaxContextTokens <= 0 {
		return msgs
	}
	for len(msgs) > 2 {
		n, err := engine.CountTokensForMessages(o.tokenizer, msgs, o.model)
		if err != nil || n <= o.opts.MaxContextTokens {
			break
		}
		msgs = append(msgs[:1], msgs[2:]...)
	}
	return msgs
}

func (o *Orchestrator) instruction(id string, vars map[string]string) (string, error) {
	text, err := o.registry.Render(id, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", id, err)
	}
	return text, nil
}
