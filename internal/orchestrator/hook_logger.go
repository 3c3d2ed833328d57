package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/ChamsBouzaiene/ensemble/internal/engine"
	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

// LoggerHook writes one line per round event. Model selects the tokenizer
// used for prompt estimates.
type LoggerHook struct {
	L     *log.Logger
	Model string
}

func (h LoggerHook) OnRoundStart(_ context.Context, s *session.Session, round Round, agents []string) {
	h.L.Printf("round=%s session=%s agents=%v", round, s.ID, agents)
}

func (h LoggerHook) OnBeforeLLM(_ context.Context, _ *session.Session, turn Turn, msgs []engine.ChatMessage) {
	tokenizer := engine.GetTokenizerForModel(h.Model)
	tokens, _ := engine.CountTokensForMessages(tokenizer, msgs, h.Model)
	h.L.Printf("📤 round=%s agent=%s channel=%s: %d msgs | 💰 tokens=~%d", turn.Round, turn.Agent, turn.Channel, len(msgs), tokens)
}

func (h LoggerHook) OnAgentReply(_ context.Context, _ *session.Session, turn Turn, e session.Entry, u engine.Usage) {
	h.L.Printf("round=%s agent=%s replied (%d chars) tokens: prompt=%d completion=%d total=%d",
		turn.Round, turn.Agent, len(e.Text), u.Prompt, u.Completion, u.Total)
}

func (h LoggerHook) OnAgentError(_ context.Context, _ *session.Session, err *RoundError) {
	if engine.IsRetryExhausted(err.Err) {
		h.L.Printf("round=%s agent=%s skipped after retries: %v", err.Round, err.Agent, err.Err)
		return
	}
	h.L.Printf("round=%s agent=%s skipped: %v", err.Round, err.Agent, err.Err)
}

func (h LoggerHook) OnRetryAttempt(_ context.Context, _ *session.Session, turn Turn, attempt int, delay time.Duration, err error) {
	h.L.Printf("retry agent=%s attempt=%d delay=%v error=%v", turn.Agent, attempt, delay, err)
}

func (h LoggerHook) OnRoundDone(_ context.Context, _ *session.Session, res *RoundResult) {
	h.L.Printf("done: round=%s appended=%d skipped=%d tokens=%d", res.Round, len(res.Appended), len(res.Errors), res.Usage.Total)
}

func (h LoggerHook) OnCheckpoint(_ context.Context, s *session.Session, err error) {
	if err != nil {
		h.L.Printf("⚠️  checkpoint failed session=%s: %v", s.ID, err)
		return
	}
	h.L.Printf("checkpoint session=%s", s.ID)
}
