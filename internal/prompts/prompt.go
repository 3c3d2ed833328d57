package prompts

// PromptVersion represents a version identifier for prompts ("major.minor.patch").
type PromptVersion string

const (
	// PromptV1 is the first version of prompts.
	PromptV1 PromptVersion = "1.0.0"
	// PromptV2 is the second version.
	PromptV2 PromptVersion = "2.0.0"
)

// Prompt represents a versioned prompt template with metadata.
// Content may contain {{name}} placeholders filled by PromptBuilder.
type Prompt struct {
	ID          string        // Unique identifier (e.g., "persona.system", "round.broadcast")
	Version     PromptVersion // Version of this prompt
	Content     string        // The template text
	Description string        // Human-readable description
	Tags        []string      // Tags for categorization (e.g., ["persona", "casual"])
	Deprecated  bool          // True if this version is deprecated
}

// Template identifiers registered by this package.
const (
	IDSynthesisSystem = "persona.synthesis.system"
	IDSynthesis       = "persona.synthesis"
	IDToneNeutral     = "persona.tone.neutral"
	IDToneCasual      = "persona.tone.casual"
	IDPersonaSystem   = "persona.system"

	IDRoundIntroduce = "round.introduce"
	IDRoundContinue  = "round.continue"
	IDRoundBroadcast = "round.broadcast"
	IDRoundReply     = "round.reply"
	IDRoundPrivate   = "round.private"
	IDRoundProbeAsk  = "round.probe.ask"
	IDRoundProbeTell = "round.probe.answer"

	IDTitle = "session.title"
)
