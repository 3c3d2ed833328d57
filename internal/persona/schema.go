package persona

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaJSON is the JSON schema every persona document must satisfy.
const SchemaJSON = `{
  "type": "object",
  "required": ["personality", "goals", "user_attitude", "speech_style", "avatar_meaning", "interaction_style", "catchphrase"],
  "properties": {
    "personality":       {"type": "string", "minLength": 1},
    "goals": {
      "type": "array",
      "minItems": 1,
      "maxItems": 3,
      "items": {"type": "string", "minLength": 1}
    },
    "user_attitude":     {"type": "string", "minLength": 1},
    "speech_style":      {"type": "string", "minLength": 1},
    "avatar_meaning":    {"type": "string", "minLength": 1},
    "interaction_style": {"type": "string", "minLength": 1},
    "catchphrase":       {"type": "string", "minLength": 1}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(SchemaJSON)

// ValidateDocument checks doc against SchemaJSON and returns one message
// per violation, sorted. An empty result means the document is valid.
func ValidateDocument(doc map[string]any) []string {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return []string{fmt.Sprintf("schema validation failed: %v", err)}
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	sort.Strings(problems)
	return problems
}

// Fallback is the deterministic persona used when synthesis cannot produce
// one. It satisfies SchemaJSON.
func Fallback(name, userRole string) Spec {
	return Spec{
		Personality: fmt.Sprintf("%s is friendly and observant, glad to be part of the scene.", name),
		Goals: []string{
			fmt.Sprintf("Help the %s understand what is going on", userRole),
			fmt.Sprintf("Play %s's part in the scene honestly", name),
		},
		UserAttitude:     fmt.Sprintf("Curious about the %s and willing to talk.", userRole),
		SpeechStyle:      "Plain and polite, to the point.",
		AvatarMeaning:    fmt.Sprintf("The avatar is simply how %s appears to others.", name),
		InteractionStyle: fmt.Sprintf("Answers the %s directly and keeps replies short.", userRole),
		Catchphrase:      "Let's see where this goes.",
	}
}

// FallbackDocument returns Fallback as a JSON document.
func FallbackDocument(name, userRole string) map[string]any {
	return Fallback(name, userRole).Document()
}

// Coerce converts a loosely-typed document into a Spec. Fields that are
// missing or have the wrong shape take their value from Fallback; their
// JSON names are returned, sorted. Goals are trimmed, blanks dropped and
// the list cut to MaxGoals; a single string is accepted as one goal.
func Coerce(doc map[string]any, name, userRole string) (Spec, []string) {
	def := Fallback(name, userRole)
	var defaulted []string

	str := func(key, fallback string) string {
		if s, ok := doc[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
		defaulted = append(defaulted, key)
		return fallback
	}

	spec := Spec{
		Personality:      str("personality", def.Personality),
		UserAttitude:     str("user_attitude", def.UserAttitude),
		SpeechStyle:      str("speech_style", def.SpeechStyle),
		AvatarMeaning:    str("avatar_meaning", def.AvatarMeaning),
		InteractionStyle: str("interaction_style", def.InteractionStyle),
		Catchphrase:      str("catchphrase", def.Catchphrase),
	}

	spec.Goals = coerceGoals(doc["goals"])
	if len(spec.Goals) == 0 {
		spec.Goals = def.Goals
		defaulted = append(defaulted, "goals")
	}

	sort.Strings(defaulted)
	return spec, defaulted
}

func coerceGoals(v any) []string {
	var raw []any
	switch g := v.(type) {
	case string:
		raw = []any{g}
	case []any:
		raw = g
	case []string:
		for _, s := range g {
			raw = append(raw, s)
		}
	default:
		return nil
	}

	goals := make([]string, 0, MaxGoals)
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		goals = append(goals, s)
		if len(goals) == MaxGoals {
			break
		}
	}
	return goals
}
