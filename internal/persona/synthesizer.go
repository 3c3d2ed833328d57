package persona

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ChamsBouzaiene/ensemble/internal/engine"
	"github.com/ChamsBouzaiene/ensemble/internal/prompts"
	"github.com/ChamsBouzaiene/ensemble/internal/repair"
)

// Options tunes the synthesis call.
type Options struct {
	Temperature float32
	MaxTokens   int
	// Retry applies to each model call. SynthesizeOrFallback adds one more
	// attempt on top before substituting the fallback persona.
	Retry  engine.RetryPolicy
	Logger *log.Logger
}

// DefaultOptions returns temperature 0.7 and 500 output tokens with no
// per-call retries.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.7,
		MaxTokens:   500,
		Retry:       engine.NoRetryConfig().LLMPolicy,
	}
}

// Result is one synthesized persona.
type Result struct {
	Spec         Spec
	SystemPrompt string
	// Stage tells how Output Repair recovered the model's JSON.
	Stage repair.Stage
	// Defaulted lists fields filled from the fallback persona.
	Defaulted []string
	// Problems are schema violations of the repaired document.
	Problems []string
	Usage    engine.Usage
	// Fallback is true when the whole persona is the fallback persona
	// because the model could not be reached; Cause holds the error.
	Fallback bool
	Cause    error
}

// Synthesizer creates personas with a language model.
type Synthesizer struct {
	llm      engine.LLMClient
	model    string
	registry *prompts.PromptRegistry
	opts     Options
	logger   *log.Logger
}

// NewSynthesizer creates a synthesizer using the default prompt registry.
func NewSynthesizer(llm engine.LLMClient, model string, opts Options) *Synthesizer {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Synthesizer{
		llm:      llm,
		model:    model,
		registry: prompts.DefaultRegistry(),
		opts:     opts,
		logger:   logger,
	}
}

// WithRegistry swaps the prompt registry, for custom templates.
func (s *Synthesizer) WithRegistry(r *prompts.PromptRegistry) *Synthesizer {
	s.registry = r
	return s
}

// Messages builds the synthesis request for req.
func (s *Synthesizer) Messages(req Request) ([]engine.ChatMessage, error) {
	system, err := s.registry.Render(prompts.IDSynthesisSystem, nil)
	if err != nil {
		return nil, err
	}

	toneID := prompts.IDToneNeutral
	if req.Tone == ToneCasual {
		toneID = prompts.IDToneCasual
	}
	tone, err := s.registry.GetLatest(toneID)
	if err != nil {
		return nil, err
	}
	base, err := s.registry.GetLatest(prompts.IDSynthesis)
	if err != nil {
		return nil, err
	}
	builder, err := prompts.NewPromptBuilder(s.registry, base.ID, base.Version)
	if err != nil {
		return nil, err
	}
	user, err := builder.
		AddFragment(tone.Content).
		SetVariable("scenario", req.Scenario).
		SetVariable("name", req.Name).
		SetVariable("avatar", req.Avatar).
		SetVariable("peers", peerList(req.Peers)).
		SetVariable("user_role", req.UserRole).
		Build()
	if err != nil {
		return nil, err
	}

	return []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: system},
		{Role: engine.RoleUser, Content: user},
	}, nil
}

// Synthesize issues one synthesis request (with the configured per-call
// retries) and returns the persona. Transport failures are returned as
// *SynthesisError; malformed output never is, it is repaired or defaulted.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	msgs, err := s.Messages(req)
	if err != nil {
		return Result{}, fmt.Errorf("build synthesis prompt: %w", err)
	}

	resp, err := engine.RetryLLMCall(ctx, s.opts.Retry, s.llm, s.model, msgs, engine.ChatOptions{
		Temperature:     s.opts.Temperature,
		MaxOutputTokens: s.opts.MaxTokens,
	}, func(attempt int, delay time.Duration, err error) {
		s.logger.Printf("persona: retry %d for %s in %v: %v", attempt, req.Name, delay, err)
	})
	if err != nil {
		return Result{}, &SynthesisError{Agent: req.Name, Err: engine.WrapWithContext(err, "synthesis", req.Name)}
	}

	repaired := repair.Repair(resp.Assistant.Content, func() map[string]any {
		return FallbackDocument(req.Name, req.UserRole)
	})
	problems := ValidateDocument(repaired.Object)
	spec, defaulted := Coerce(repaired.Object, req.Name, req.UserRole)
	if repaired.Repaired() || len(defaulted) > 0 {
		s.logger.Printf("persona: %s repaired (stage=%s, defaulted=%v)", req.Name, repaired.Stage, defaulted)
	}

	prompt, err := Render(s.registry, req, spec)
	if err != nil {
		return Result{}, fmt.Errorf("render persona prompt: %w", err)
	}

	return Result{
		Spec:         spec,
		SystemPrompt: prompt,
		Stage:        repaired.Stage,
		Defaulted:    defaulted,
		Problems:     problems,
		Usage:        resp.Usage,
	}, nil
}

// SynthesizeOrFallback retries a failed synthesis once and then substitutes
// the fallback persona, so every agent ends up with a usable prompt. The
// only errors returned are request validation failures.
func (s *Synthesizer) SynthesizeOrFallback(ctx context.Context, req Request) (Result, error) {
	res, err := s.Synthesize(ctx, req)
	if err == nil {
		return res, nil
	}
	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) {
		return Result{}, err
	}

	if ctx.Err() == nil {
		s.logger.Printf("persona: %v; retrying once", synthErr)
		res, err = s.Synthesize(ctx, req)
		if err == nil {
			return res, nil
		}
		if !errors.As(err, &synthErr) {
			return Result{}, err
		}
	}

	s.logger.Printf("persona: using fallback persona for %s: %v", req.Name, synthErr.Err)
	return s.FallbackResult(req, synthErr)
}

// FallbackResult renders the fallback persona for req.
func (s *Synthesizer) FallbackResult(req Request, cause error) (Result, error) {
	spec := Fallback(req.Name, req.UserRole)
	prompt, err := Render(s.registry, req, spec)
	if err != nil {
		return Result{}, fmt.Errorf("render fallback persona: %w", err)
	}
	return Result{
		Spec:         spec,
		SystemPrompt: prompt,
		Stage:        repair.StageFallback,
		Fallback:     true,
		Cause:        cause,
	}, nil
}
