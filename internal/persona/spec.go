// Package persona turns a scenario and a character name into a stable
// persona definition and the system prompt that conditions the character.
package persona

import (
	"errors"
	"fmt"
	"strings"
)

// Tone selects the register requested from the model.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneCasual  Tone = "casual"
)

// ParseTone parses a tone name; the empty string means neutral.
func ParseTone(s string) (Tone, error) {
	switch Tone(strings.ToLower(strings.TrimSpace(s))) {
	case "", ToneNeutral:
		return ToneNeutral, nil
	case ToneCasual:
		return ToneCasual, nil
	default:
		return "", fmt.Errorf("unknown tone %q (want neutral or casual)", s)
	}
}

// MaxGoals is the largest number of goals a persona keeps.
const MaxGoals = 3

// Spec is the strict persona record.
type Spec struct {
	Personality      string   `json:"personality"`
	Goals            []string `json:"goals"`
	UserAttitude     string   `json:"user_attitude"`
	SpeechStyle      string   `json:"speech_style"`
	AvatarMeaning    string   `json:"avatar_meaning"`
	InteractionStyle string   `json:"interaction_style"`
	Catchphrase      string   `json:"catchphrase"`
}

// Document returns the spec as a loosely-typed JSON document.
func (s Spec) Document() map[string]any {
	goals := make([]any, len(s.Goals))
	for i, g := range s.Goals {
		goals[i] = g
	}
	return map[string]any{
		"personality":       s.Personality,
		"goals":             goals,
		"user_attitude":     s.UserAttitude,
		"speech_style":      s.SpeechStyle,
		"avatar_meaning":    s.AvatarMeaning,
		"interaction_style": s.InteractionStyle,
		"catchphrase":       s.Catchphrase,
	}
}

// Peer is another roster member, shown to the persona as context only.
type Peer struct {
	Name   string
	Avatar string
}

// Request carries everything needed to synthesize one persona.
type Request struct {
	Scenario string
	Name     string
	Avatar   string
	Peers    []Peer
	UserRole string
	Tone     Tone
}

// ErrInvalidRequest is wrapped by Request.Validate failures.
var ErrInvalidRequest = errors.New("invalid persona request")

// Validate checks the request before any model call.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Scenario) == "":
		return fmt.Errorf("%w: scenario is empty", ErrInvalidRequest)
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("%w: agent name is empty", ErrInvalidRequest)
	case strings.TrimSpace(r.UserRole) == "":
		return fmt.Errorf("%w: user role is empty", ErrInvalidRequest)
	}
	for _, p := range r.Peers {
		if p.Name == r.Name {
			return fmt.Errorf("%w: %s is listed as its own peer", ErrInvalidRequest, r.Name)
		}
	}
	return nil
}

// SynthesisError reports a model-call failure while creating a persona.
type SynthesisError struct {
	Agent string
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("persona synthesis failed for %s: %v", e.Agent, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
