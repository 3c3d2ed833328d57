// Package orchestrator runs conversation rounds between the user and the
// agents of a session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/ensemble/internal/engine"
	"github.com/ChamsBouzaiene/ensemble/internal/persona"
	"github.com/ChamsBouzaiene/ensemble/internal/prompts"
	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

// Round names a round type.
type Round string

const (
	RoundIntroductions Round = "introductions"
	RoundContinue      Round = "continue"
	RoundBroadcast     Round = "broadcast"
	RoundReply         Round = "reply"
	RoundPrivate       Round = "private"
	RoundProbe         Round = "probe"
	RoundCast          Round = "cast"
)

// ErrEmptyReply is recorded when a model answers with blank text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Options configures an Orchestrator.
type Options struct {
	Temperature float32
	MaxTokens   int
	Retry       engine.RetryPolicy

	// History window sizes, in entries.
	IntroWindow     int
	ContinueWindow  int
	BroadcastWindow int // entries before the user's message
	PrivateWindow   int
	ProbeWindow     int

	// MaxContextTokens drops the oldest window entries until the request
	// fits. Zero disables the ceiling.
	MaxContextTokens int

	// Parallel issues a round's model calls concurrently. Entries are still
	// appended in roster order once every call has returned.
	Parallel bool

	Probe ProbePolicy
	// UserAvatar is shown next to the user's own entries.
	UserAvatar string
	// Store receives a checkpoint after every round. Nil disables it.
	Store session.Store
	Hook  Hook
}

// DefaultOptions returns the standard round settings.
func DefaultOptions() Options {
	return Options{
		Temperature:     0.7,
		MaxTokens:       300,
		Retry:           engine.DefaultRetryConfig().LLMPolicy,
		IntroWindow:     3,
		ContinueWindow:  5,
		BroadcastWindow: 5,
		PrivateWindow:   8,
		ProbeWindow:     5,
		Probe:           FirstOtherPolicy{},
		UserAvatar:      "🧑",
	}
}

// RoundError records one agent whose turn was skipped.
type RoundError struct {
	Round Round
	Agent string
	Err   error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("round %s: agent %s: %v", e.Round, e.Agent, e.Err)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}

// RoundResult describes what a round appended.
type RoundResult struct {
	Round    Round
	Appended []session.Entry
	Errors   []*RoundError
	Usage    engine.Usage
}

// Skipped returns the agents whose turn failed, in order.
func (r *RoundResult) Skipped() []string {
	names := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		names[i] = e.Agent
	}
	return names
}

// Orchestrator executes rounds against a caller-owned session. A session
// must not be used by two rounds at the same time.
type Orchestrator struct {
	llm       engine.LLMClient
	model     string
	opts      Options
	registry  *prompts.PromptRegistry
	tokenizer engine.Tokenizer
	hook      Hook
}

// New creates an orchestrator. Zero-valued options fall back to
// DefaultOptions.
func New(llm engine.LLMClient, model string, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.Temperature == 0 {
		opts.Temperature = def.Temperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.IntroWindow <= 0 {
		opts.IntroWindow = def.IntroWindow
	}
	if opts.ContinueWindow <= 0 {
		opts.ContinueWindow = def.ContinueWindow
	}
	if opts.BroadcastWindow <= 0 {
		opts.BroadcastWindow = def.BroadcastWindow
	}
	if opts.PrivateWindow <= 0 {
		opts.PrivateWindow = def.PrivateWindow
	}
	if opts.ProbeWindow <= 0 {
		opts.ProbeWindow = def.ProbeWindow
	}
	if opts.Probe == nil {
		opts.Probe = def.Probe
	}
	if opts.UserAvatar == "" {
		opts.UserAvatar = def.UserAvatar
	}
	hook := opts.Hook
	if hook == nil {
		hook = NopHook{}
	}
	return &Orchestrator{
		llm:       llm,
		model:     model,
		opts:      opts,
		registry:  prompts.DefaultRegistry(),
		tokenizer: engine.GetTokenizerForModel(model),
		hook:      hook,
	}
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Checkpoint saves the whole session to the configured store. Failures are
// returned as *session.PersistenceError; the in-memory session is untouched
// so the caller can retry.
func (o *Orchestrator) Checkpoint(ctx context.Context, s *session.Session) error {
	if o.opts.Store == nil {
		return nil
	}
	err := o.opts.Store.Save(ctx, s)
	o.hook.OnCheckpoint(ctx, s, err)
	return err
}

// Cast synthesizes a persona for every agent that has none yet, or for all
// agents when force is set. Synthesis failures are masked by the fallback
// persona; only validation errors are returned.
func (o *Orchestrator) Cast(ctx context.Context, s *session.Session, synth *persona.Synthesizer, tone persona.Tone, force bool) ([]persona.Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var pending []string
	for _, a := range s.Agents {
		if force || !a.Synthesized() {
			pending = append(pending, a.Name)
		}
	}
	res := &RoundResult{Round: RoundCast}
	o.hook.OnRoundStart(ctx, s, RoundCast, pending)

	results := make([]persona.Result, 0, len(pending))
	for _, name := range pending {
		req, err := s.PersonaRequest(name, tone)
		if err != nil {
			return results, err
		}
		r, err := synth.SynthesizeOrFallback(ctx, req)
		if err != nil {
			return results, err
		}
		if r.Fallback {
			o.hook.OnAgentError(ctx, s, &RoundError{Round: RoundCast, Agent: name, Err: r.Cause})
		}
		if err := s.SetPersona(name, r); err != nil {
			return results, err
		}
		res.Usage.Add(r.Usage)
		results = append(results, r)
	}

	o.hook.OnRoundDone(ctx, s, res)
	return results, o.finish(ctx, s)
}

// call is one prepared agent invocation.
type call struct {
	turn  Turn
	agent *session.Agent
	msgs  []engine.ChatMessage
}

type reply struct {
	text  string
	usage engine.Usage
	err   error
}

func (o *Orchestrator) invoke(ctx context.Context, s *session.Session, c call) reply {
	o.hook.OnBeforeLLM(ctx, s, c.turn, c.msgs)
	opts := engine.ChatOptions{
		Temperature:     o.opts.Temperature,
		MaxOutputTokens: o.opts.MaxTokens,
	}

	// Blank replies count as a guarded failure so they get a limited retry.
	var usage engine.Usage
	resp, err := engine.RetryWithPolicy(ctx, o.opts.Retry, func(ctx context.Context) (engine.LLMResponse, error) {
		resp, err := o.llm.Chat(ctx, o.model, c.msgs, opts)
		if err != nil {
			return resp, err
		}
		usage.Add(resp.Usage)
		if strings.TrimSpace(resp.Assistant.Content) == "" {
			return resp, engine.NewEngineError(ErrEmptyReply, engine.RetryClassMaybe)
		}
		return resp, nil
	}, engine.ClassifyLLMError, func(attempt int, delay time.Duration, err error) {
		o.hook.OnRetryAttempt(ctx, s, c.turn, attempt, delay, err)
	})
	if err != nil {
		return reply{usage: usage, err: engine.WrapWithContext(err, string(c.turn.Round), c.agent.Name)}
	}
	return reply{text: strings.TrimSpace(resp.Assistant.Content), usage: usage}
}

// run invokes every call and commits the replies in call order. Sequential
// runs commit each reply as it arrives; parallel runs wait for all of them.
func (o *Orchestrator) run(ctx context.Context, s *session.Session, res *RoundResult, calls []call) {
	if !o.opts.Parallel || len(calls) < 2 {
		for _, c := range calls {
			o.commit(ctx, s, res, c, o.invoke(ctx, s, c))
		}
		return
	}

	replies := make([]reply, len(calls))
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(i int, c call) {
			defer wg.Done()
			replies[i] = o.invoke(ctx, s, c)
		}(i, c)
	}
	wg.Wait()
	for i, c := range calls {
		o.commit(ctx, s, res, c, replies[i])
	}
}

// commit appends one reply to its channel, or records the failure.
func (o *Orchestrator) commit(ctx context.Context, s *session.Session, res *RoundResult, c call, r reply) (session.Entry, bool) {
	res.Usage.Add(r.usage)
	if r.err != nil {
		rerr := &RoundError{Round: c.turn.Round, Agent: c.agent.Name, Err: r.err}
		res.Errors = append(res.Errors, rerr)
		o.hook.OnAgentError(ctx, s, rerr)
		return session.Entry{}, false
	}

	entry := session.Entry{Speaker: c.agent.Name, Avatar: c.agent.Avatar, Text: r.text}
	if c.turn.Channel.IsPrivate() {
		var err error
		entry, err = s.AppendPrivate(c.turn.Channel.Agent(), entry)
		if err != nil {
			rerr := &RoundError{Round: c.turn.Round, Agent: c.agent.Name, Err: err}
			res.Errors = append(res.Errors, rerr)
			o.hook.OnAgentError(ctx, s, rerr)
			return session.Entry{}, false
		}
	} else {
		entry = s.AppendPublic(entry)
	}
	res.Appended = append(res.Appended, entry)
	o.hook.OnAgentReply(ctx, s, c.turn, entry, r.usage)
	return entry, true
}

// finish checkpoints after a round unless the caller abandoned it.
func (o *Orchestrator) finish(ctx context.Context, s *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.Checkpoint(ctx, s)
}
