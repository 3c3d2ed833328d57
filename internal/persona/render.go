package persona

import (
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/ensemble/internal/prompts"
)

// Render produces the persona system prompt. The order is fixed: identity,
// scenario, personality, catchphrase, numbered goals, attitude toward the
// user role, speech style, interaction style, behavioral rules, then the
// peer roster as context.
func Render(registry *prompts.PromptRegistry, req Request, spec Spec) (string, error) {
	return registry.Render(prompts.IDPersonaSystem, map[string]string{
		"name":              req.Name,
		"avatar":            req.Avatar,
		"avatar_meaning":    spec.AvatarMeaning,
		"scenario":          strings.TrimSpace(req.Scenario),
		"personality":       spec.Personality,
		"catchphrase":       spec.Catchphrase,
		"goals":             numberedGoals(spec.Goals),
		"user_role":         req.UserRole,
		"user_attitude":     spec.UserAttitude,
		"speech_style":      spec.SpeechStyle,
		"interaction_style": spec.InteractionStyle,
		"peers":             peerList(req.Peers),
	})
}

func numberedGoals(goals []string) string {
	lines := make([]string, len(goals))
	for i, g := range goals {
		lines[i] = fmt.Sprintf("%d. %s", i+1, g)
	}
	return strings.Join(lines, "\n")
}

func peerList(peers []Peer) string {
	if len(peers) == 0 {
		return "nobody else"
	}
	parts := make([]string, len(peers))
	for i, p := range peers {
		if p.Avatar == "" {
			parts[i] = p.Name
			continue
		}
		parts[i] = p.Name + " " + p.Avatar
	}
	return strings.Join(parts, ", ")
}
