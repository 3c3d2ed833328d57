package orchestrator

import (
	"context"
	"time"

	"github.com/ChamsBouzaiene/ensemble/internal/engine"
	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

// Turn identifies one agent invocation inside a round.
type Turn struct {
	Round   Round
	Agent   string
	Channel session.Channel
}

// Hook observes round execution. OnBeforeLLM and OnRetryAttempt may be
// called from several goroutines when Options.Parallel is set; the other
// callbacks run on the caller's goroutine.
type Hook interface {
	OnRoundStart(ctx context.Context, s *session.Session, round Round, agents []string)
	OnBeforeLLM(ctx context.Context, s *session.Session, turn Turn, messages []engine.ChatMessage)
	OnAgentReply(ctx context.Context, s *session.Session, turn Turn, entry session.Entry, usage engine.Usage)
	OnAgentError(ctx context.Context, s *session.Session, err *RoundError)
	OnRetryAttempt(ctx context.Context, s *session.Session, turn Turn, attempt int, delay time.Duration, err error)
	OnRoundDone(ctx context.Context, s *session.Session, res *RoundResult)
	OnCheckpoint(ctx context.Context, s *session.Session, err error)
}

// NopHook lets you implement any hook you need.
type NopHook struct{}

func (NopHook) OnRoundStart(context.Context, *session.Session, Round, []string)                   {}
func (NopHook) OnBeforeLLM(context.Context, *session.Session, Turn, []engine.ChatMessage)         {}
func (NopHook) OnAgentReply(context.Context, *session.Session, Turn, session.Entry, engine.Usage) {}
func (NopHook) OnAgentError(context.Context, *session.Session, *RoundError)                       {}
func (NopHook) OnRetryAttempt(context.Context, *session.Session, Turn, int, time.Duration, error) {}
func (NopHook) OnRoundDone(context.Context, *session.Session, *RoundResult)                       {}
func (NopHook) OnCheckpoint(context.Context, *session.Session, error)                             {}

// Hooks fans every callback out to each hook in order.
type Hooks []Hook

func (hs Hooks) OnRoundStart(ctx context.Context, s *session.Session, round Round, agents []string) {
	for _, h := range hs {
		h.OnRoundStart(ctx, s, round, agents)
	}
}
func (hs Hooks) OnBeforeLLM(ctx context.Context, s *session.Session, turn Turn, m []engine.ChatMessage) {
	for _, h := range hs {
		h.OnBeforeLLM(ctx, s, turn, m)
	}
}
func (hs Hooks) OnAgentReply(ctx context.Context, s *session.Session, turn Turn, e session.Entry, u engine.Usage) {
	for _, h := range hs {
		h.OnAgentReply(ctx, s, turn, e, u)
	}
}
func (hs Hooks) OnAgentError(ctx context.Context, s *session.Session, err *RoundError) {
	for _, h := range hs {
		h.OnAgentError(ctx, s, err)
	}
}
func (hs Hooks) OnRetryAttempt(ctx context.Context, s *session.Session, turn Turn, attempt int, delay time.Duration, err error) {
	for _, h := range hs {
		h.OnRetryAttempt(ctx, s, turn, attempt, delay, err)
	}
}
func (hs Hooks) OnRoundDone(ctx context.Context, s *session.Session, res *RoundResult) {
	for _, h := range hs {
		h.OnRoundDone(ctx, s, res)
	}
}
func (hs Hooks) OnCheckpoint(ctx context.Context, s *session.Session, err error) {
	for _, h := range hs {
		h.OnCheckpoint(ctx, s, err)
	}
}
