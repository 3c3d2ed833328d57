package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/ensemble/internal/engine"
	"github.com/ChamsBouzaiene/ensemble/internal/persona"
	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

// MockLLM answers as the agent named in the system prompt ("persona:<name>").
type MockLLM struct {
	mu    sync.Mutex
	Calls []mockCall
	Fail  map[string]error
	Delay map[string]time.Duration
	Text  map[string]string
}

type mockCall struct {
	Agent    string
	Messages []engine.ChatMessage
}

func agentOf(msgs []engine.ChatMessage) string {
	if len(msgs) == 0 {
		return ""
	}
	return strings.TrimPrefix(msgs[0].Content, "persona:")
}

func (m *MockLLM) Chat(ctx context.Context, model string, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
	agent := agentOf(messages)

	m.mu.Lock()
	m.Calls = append(m.Calls, mockCall{Agent: agent, Messages: append([]engine.ChatMessage(nil), messages...)})
	n := len(m.Calls)
	err := m.Fail[agent]
	delay := m.Delay[agent]
	text, fixed := m.Text[agent]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return engine.LLMResponse{}, err
	}
	if !fixed {
		text = fmt.Sprintf("%s line %d", agent, n)
	}
	return engine.LLMResponse{
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: text},
		Usage:     engine.Usage{Prompt: 10, Completion: 5, Total: 15},
	}, nil
}

func (m *MockLLM) callsFor(agent string) []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockCall
	for _, c := range m.Calls {
		if c.Agent == agent {
			out = append(out, c)
		}
	}
	return out
}

func newScene(t *testing.T) *session.Session {
	t.Helper()
	s := session.New("A jewel vanished from the castle vault.", "Detective")
	for _, a := range []struct{ name, avatar string }{{"Guard", "👮"}, {"Witch", "🧙"}} {
		if _, err := s.AddAgent(a.name, a.avatar); err != nil {
			t.Fatal(err)
		}
		if err := s.SetPersona(a.name, personaResult(a.name)); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func personaResult(name string) persona.Result {
	return persona.Result{SystemPrompt: "persona:" + name}
}

func newOrchestrator(llm engine.LLMClient, configure func(*Options)) *Orchestrator {
	opts := DefaultOptions()
	opts.Retry = engine.NoRetryConfig().LLMPolicy
	if configure != nil {
		configure(&opts)
	}
	return New(llm, "test-model", opts)
}

func speakers(entries []session.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Speaker
	}
	return out
}

// roundOK fails the test when a round errors or skips an agent.
func roundOK(t *testing.T) func(*RoundResult, error) *RoundResult {
	t.Helper()
	return func(res *RoundResult, err error) *RoundResult {
		t.Helper()
		if err != nil {
			t.Fatalf("round failed: %v", err)
		}
		if len(res.Errors) > 0 {
			t.Fatalf("round skipped agents: %v", res.Errors)
		}
		return res
	}
}

func TestScenarioEndToEnd(t *testing.T) {
	ctx := context.Background()
	llm := &MockLLM{}
	o := newOrchestrator(llm, nil)
	s := newScene(t)

	roundOK(t)(o.Introductions(ctx, s))
	if got := speakers(s.Public); !reflect.DeepEqual(got, []string{"Guard", "Witch"}) {
		t.Fatalf("after introductions: %v", got)
	}

	res := roundOK(t)(o.Broadcast(ctx, s, "Who did this?"))
	if got := speakers(s.Public[2:]); !reflect.DeepEqual(got, []string{"Detective", "Guard", "Witch"}) {
		t.Fatalf("after broadcast: %v", got)
	}
	if len(res.Appended) != 3 || res.Usage.Total != 30 {
		t.Errorf("broadcast result = %+v", res)
	}

	roundOK(t)(o.PrivateMessage(ctx, s, "Witch", "tell me secretly"))
	if got := speakers(s.Private["Witch"]); !reflect.DeepEqual(got, []string{"Detective", "Witch"}) {
		t.Fatalf("private channel = %v", got)
	}
	if len(s.Public) != 5 {
		t.Fatalf("private message changed public history: %d entries", len(s.Public))
	}
	secret := s.Private["Witch"][1].Text

	res = roundOK(t)(o.CuriosityProbe(ctx, s, "Witch"))
	if got := speakers(s.Public[5:]); !reflect.DeepEqual(got, []string{"Guard", "Witch"}) {
		t.Fatalf("probe appended %v", got)
	}
	if len(res.Appended) != 2 || len(s.Private["Witch"]) != 2 || len(s.Private["Guard"]) != 0 {
		t.Errorf("probe touched private channels: %+v", s.Private)
	}

	// The probed agent sees exactly the question, never the private text.
	witchCalls := llm.callsFor("Witch")
	last := witchCalls[len(witchCalls)-1].Messages
	if len(last) != 3 || last[1].Content != "Guard: "+s.Public[5].Text {
		t.Errorf("probe answer context = %+v", last)
	}
	for _, m := range last {
		if strings.Contains(m.Content, "tell me secretly") || strings.Contains(m.Content, secret) {
			t.Errorf("private text leaked into probe context: %q", m.Content)
		}
	}
}

func TestPrivateTextNeverReachesOtherAgents(t *testing.T) {
	ctx := context.Background()
	llm := &MockLLM{Text: map[string]string{"Witch": "The cat took it."}}
	o := newOrchestrator(llm, nil)
	s := newScene(t)

	roundOK(t)(o.PrivateMessage(ctx, s, "Witch", "psst, what do you know?"))
	llm.Text = nil
	roundOK(t)(o.Introductions(ctx, s))
	roundOK(t)(o.Broadcast(ctx, s, "Anyone?"))
	roundOK(t)(o.Continue(ctx, s))
	roundOK(t)(o.CuriosityProbe(ctx, s, "Witch"))

	for _, c := range llm.Calls {
		for _, m := range c.Messages {
			if strings.Contains(m.Content, "psst") || strings.Contains(m.Content, "The cat took it.") {
				if c.Agent != "Witch" || len(c.Messages) < 3 || !strings.HasPrefix(c.Messages[len(c.Messages)-1].Content, "CONFIDENTIAL") {
					t.Errorf("private text in %s's %d-message request: %q", c.Agent, len(c.Messages), m.Content)
				}
			}
		}
	}
}

func TestRoundWindowsUseSnapshotAndRoles(t *testing.T) {
	ctx := context.Background()
	llm := &MockLLM{}
	o := newOrchestrator(llm, nil)
	s := newScene(t)

	for i := 0; i < 4; i++ {
		s.AppendPublic(session.Entry{Speaker: "Guard", Text: fmt.Sprintf("guard %d", i)})
		s.AppendPublic(session.Entry{Speaker: "Witch", Text: fmt.Sprintf("witch %d", i)})
	}
	roundOK(t)(o.Broadcast(ctx, s, "Who did this?"))

	guard := llm.callsFor("Guard")[0].Messages
	witch := llm.callsFor("Witch")[0].Messages

	// system + 5 prior entries + the user's message + instruction
	if len(guard) != 8 || len(witch) != 8 {
		t.Fatalf("window sizes: guard=%d witch=%d", len(guard), len(witch))
	}
	for _, m := range witch {
		if strings.Contains(m.Content, "Guard line") {
			t.Errorf("Witch saw Guard's same-round answer: %q", m.Content)
		}
	}

	// guard 2, witch 2, guard 3, witch 3 ... from Guard's point of view
	if guard[1].Role != engine.RoleUser || guard[1].Content != "Witch: witch 1" {
		t.Errorf("guard[1] = %+v", guard[1])
	}
	if guard[2].Role != engine.RoleAssistant || guard[2].Content != "guard 2" {
		t.Errorf("guard[2] = %+v", guard[2])
	}
	if guard[6].Role != engine.RoleUser || guard[6].Content != "Detective: Who did this?" {
		t.Errorf("guard[6] = %+v", guard[6])
	}
	if witch[2].Role != engine.RoleUser || witch[2].Content != "Guard: guard 2" {
		t.Errorf("witch[2] = %+v", witch[2])
	}
	if instr := guard[7].Content; guard[7].Role != engine.RoleUser || !strings.Contains(instr, "Guard") {
		t.Errorf("instruction = %+v", guard[7])
	}
}

func TestIntroductionsWindow(t *testing.T) {
	ctx := context.Background()
	llm := &MockLLM{}
	o := newOrchestrator(llm, nil)
	s := newScene(t)

	roundOK(t)(o.Introductions(ctx, s))
	if msgs := llm.callsFor("Guard")[0].Messages; len(msgs) != 2 {
		t.Errorf("first introduction should carry no history, got %d messages", len(msgs))
	}
	if msgs := llm.callsFor("Witch")[0].Messages; len(msgs) != 2 {
		t.Errorf("Witch saw same-round introductions: %d messages", len(msgs))
	}
}

func TestFailedAgentIsSkipped(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	llm := &MockLLM{Fail: map[string]error{"Guard": boom}}
	o := newOrchestrator(llm, nil)
	s := newScene(t)

	res, err := o.Broadcast(ctx, s, "Who did this?")
	if err != nil {
		t.Fatal(err)
	}
	if got := speakers(s.Public); !reflect.DeepEqual(got, []string{"Detective", "Witch"}) {
		t.Errorf("public = %v", got)
	}
	if len(res.Errors) != 1 || res.Errors[0].Agent != "Guard" || res.Errors[0].Round != RoundBroadcast || !errors.Is(res.Errors[0], boom) {
		t.Errorf("errors = %v", res.Errors)
	}
	if got := res.Skipped(); !reflect.DeepEqual(got, []string{"Guard"}) {
		t.Errorf("Skipped() = %v", got)
	}
}

func TestEmptyReplyIsSkipped(t *testing.T) {
	llm := &MockLLM{Text: map[string]string{"Guard": "   "}}
	o := newOrchestrator(llm, nil)
	s := newScene(t)

	res, err := o.Introductions(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], ErrEmptyReply) {
		t.Errorf("errors = %v", res.Errors)
	}
	if got := speakers(s.Public); !reflect.DeepEqual(got, []string{"Witch"}) {
		t.Errorf("public = %v", got)
	}
}

// blankOnceLLM answers blank on its first call and with a line afterwards.
type blankOnceLLM struct {
	mu    sync.Mutex
	calls int
}

func (m *blankOnceLLM) Chat(ctx context.Context, model string, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	text := "Halt, who goes there?"
	if m.calls == 1 {
		text = "\n"
	}
	return engine.LLMResponse{
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: text},
		Usage:     engine.Usage{Total: 10},
	}, nil
}

func TestEmptyReplyIsRetried(t *testing.T) {
	llm := &blankOnceLLM{}
	var retries []error
	o := newOrchestrator(llm, func(opts *Options) {
		opts.Retry = engine.RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, Multiplier: 1}
		opts.Hook = retryRecorder{errs: &retries}
	})
	s := newScene(t)

	res, err := o.Introductions(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("errors = %v", res.Errors)
	}
	if got := speakers(s.Public); !reflect.DeepEqual(got, []string{"Guard", "Witch"}) {
		t.Errorf("public = %v", got)
	}
	if len(retries) != 1 || !errors.Is(retries[0], ErrEmptyReply) {
		t.Errorf("retries = %v", retries)
	}
	if res.Usage.Total != 30 {
		t.Errorf("usage total = %d, want blank attempt counted", res.Usage.Total)
	}
}

func TestAgentErrorCarriesRoundAndAgent(t *testing.T) {
	llm := &MockLLM{Fail: map[string]error{"Witch": errors.New("boom")}}
	o := newOrchestrator(llm, nil)

	res, err := o.Continue(context.Background(), newScene(t))
	if err != nil {
		t.Fatal(err)
	}
	var callErr *engine.CallError
	if len(res.Errors) != 1 || !errors.As(res.Errors[0], &callErr) {
		t.Fatalf("errors = %v", res.Errors)
	}
	if callErr.Operation != string(RoundContinue) || callErr.Subject != "Witch" {
		t.Errorf("call error = %+v", callErr)
	}
}

type retryRecorder struct {
	NopHook
	errs *[]error
}

func (r retryRecorder) OnRetryAttempt(_ context.Context, _ *session.Session, _ Turn, _ int, _ time.Duration, err error) {
	*r.errs = append(*r.errs, err)
}

func TestParallelRoundKeepsRosterOrder(t *testing.T) {
	llm := &MockLLM{Delay: map[string]time.Duration{"Guard": 50 * time.Millisecond}}
	o := newOrchestrator(llm, func(opts *Options) { opts.Parallel = true })
	s := newScene(t)
	s.AddAgent("Butler", "🤵")
	s.SetPersona("Butler", personaResult("Butler"))

	roundOK(t)(o.Broadcast(context.Background(), s, "Who did this?"))
	if got := speakers(s.Public); !reflect.DeepEqual(got, []string{"Detective", "Guard", "Witch", "Butler"}) {
		t.Errorf("public = %v", got)
	}
	for i := 1; i < len(s.Public); i++ {
		if !s.Public[i].Timestamp.After(s.Public[i-1].Timestamp) {
			t.Errorf("timestamp %d not increasing", i)
		}
	}
}

func TestProbeAskerFailureStopsChain(t *testing.T) {
	llm := &MockLLM{Fail: map[string]error{"Guard": errors.New("timeout")}}
	o := newOrchestrator(llm, nil)
	s := newScene(t)

	res, err := o.CuriosityProbe(context.Background(), s, "Witch")
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Public) != 0 || len(res.Errors) != 1 {
		t.Errorf("public=%d errors=%v", len(s.Public), res.Errors)
	}
	if n := len(llm.callsFor("Witch")); n != 0 {
		t.Errorf("peer invoked %d times after failed question", n)
	}
}

func TestValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		run       func(o *Orchestrator, s *session.Session) error
		scene     func(t *testing.T) *session.Session
		wantField string
	}{
		{
			name:      "empty scenario",
			scene:     func(t *testing.T) *session.Session { s := newScene(t); s.Scenario = ""; return s },
			run:       func(o *Orchestrator, s *session.Session) error { _, err := o.Introductions(ctx, s); return err },
			wantField: "scenario",
		},
		{
			name:      "no agents",
			scene:     func(t *testing.T) *session.Session { return session.New("A heist.", "Detective") },
			run:       func(o *Orchestrator, s *session.Session) error { _, err := o.Broadcast(ctx, s, "hi"); return err },
			wantField: "agents",
		},
		{
			name:      "empty message",
			scene:     newScene,
			run:       func(o *Orchestrator, s *session.Session) error { _, err := o.Broadcast(ctx, s, "  "); return err },
			wantField: "text",
		},
		{
			name:      "unknown reply target",
			scene:     newScene,
			run:       func(o *Orchestrator, s *session.Session) error { _, err := o.Reply(ctx, s, "Ghost", "hi"); return err },
			wantField: "agent",
		},
		{
			name:      "unknown private target",
			scene:     newScene,
			run:       func(o *Orchestrator, s *session.Session) error { _, err := o.PrivateMessage(ctx, s, "Ghost", "hi"); return err },
			wantField: "agent",
		},
		{
			name: "probe with one agent",
			scene: func(t *testing.T) *session.Session {
				s := session.New("A heist.", "Detective")
				s.AddAgent("Guard", "👮")
				return s
			},
			run:       func(o *Orchestrator, s *session.Session) error { _, err := o.CuriosityProbe(ctx, s, "Guard"); return err },
			wantField: "agents",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &MockLLM{}
			o := newOrchestrator(llm, nil)
			s := tt.scene(t)
			before := s.Stats()

			err := tt.run(o, s)
			var ve *session.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.wantField {
				t.Fatalf("err = %v, want ValidationError on %s", err, tt.wantField)
			}
			if len(llm.Calls) != 0 {
				t.Errorf("%d model calls made before validation", len(llm.Calls))
			}
			if s.Stats() != before {
				t.Errorf("session mutated by rejected round")
			}
		})
	}
}

func TestReplyOnlyInvokesTarget(t *testing.T) {
	llm := &MockLLM{}
	o := newOrchestrator(llm, nil)
	s := newScene(t)

	roundOK(t)(o.Reply(context.Background(), s, "Witch", "Where were you?"))
	if got := speakers(s.Public); !reflect.DeepEqual(got, []string{"Detective", "Witch"}) {
		t.Errorf("public = %v", got)
	}
	if len(llm.callsFor("Guard")) != 0 {
		t.Error("Guard invoked during targeted reply")
	}
}

func TestUnsynthesizedAgentGetsFallbackPrompt(t *testing.T) {
	llm := &MockLLM{}
	o := newOrchestrator(llm, nil)
	s := session.New("A heist.", "Detective")
	s.AddAgent("Butler", "🤵")

	if _, err := o.Introductions(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	system := llm.Calls[0].Messages[0]
	if system.Role != engine.RoleSystem || !strings.Contains(system.Content, "Butler") {
		t.Errorf("system prompt = %q", system.Content)
	}
}

func TestMaxContextTokensTrimsOldestHistory(t *testing.T) {
	llm := &MockLLM{}
	o := newOrchestrator(llm, func(opts *Options) { opts.MaxContextTokens = 60 })
	s := newScene(t)
	for i := 0; i < 5; i++ {
		s.AppendPublic(session.Entry{Speaker: "Witch", Text: strings.Repeat("word ", 20)})
	}

	roundOK(t)(o.Continue(context.Background(), s))
	msgs := llm.callsFor("Guard")[0].Messages
	if len(msgs) >= 7 {
		t.Fatalf("history not trimmed: %d messages", len(msgs))
	}
	if msgs[0].Role != engine.RoleSystem || !strings.Contains(msgs[len(msgs)-1].Content, "Guard") {
		t.Errorf("system prompt or instruction dropped: %+v", msgs)
	}
}

type failingStore struct{ session.Store }

func (failingStore) Save(ctx context.Context, s *session.Session) error {
	return &session.PersistenceError{Op: "save", SessionID: s.ID, Err: errors.New("disk full")}
}

func TestCheckpointAfterRound(t *testing.T) {
	ctx := context.Background()
	store := session.NewFileStore(t.TempDir())
	o := newOrchestrator(&MockLLM{}, func(opts *Options) { opts.Store = store })
	s := newScene(t)

	roundOK(t)(o.Broadcast(ctx, s, "Who did this?"))
	loaded, err := store.Load(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Public) != 3 {
		t.Errorf("checkpoint holds %d public entries", len(loaded.Public))
	}
}

func TestCheckpointFailureIsSurfaced(t *testing.T) {
	o := newOrchestrator(&MockLLM{}, func(opts *Options) { opts.Store = failingStore{} })
	s := newScene(t)

	res, err := o.Introductions(context.Background(), s)
	var perr *session.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if res == nil || len(res.Appended) != 2 || len(s.Public) != 2 {
		t.Errorf("in-memory transcript lost: %+v", res)
	}
}

func TestCancelledRoundSkipsCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := session.NewFileStore(t.TempDir())
	llm := &MockLLM{Fail: map[string]error{"Guard": context.Canceled, "Witch": context.Canceled}}
	o := newOrchestrator(llm, func(opts *Options) { opts.Store = store })
	s := newScene(t)

	res, err := o.Introductions(ctx, s)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(res.Errors) != 2 || len(s.Public) != 0 {
		t.Errorf("result = %+v", res)
	}
	if _, err := store.Load(context.Background(), s.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("abandoned round was checkpointed: %v", err)
	}
}

// synthLLM answers every synthesis request with the same reply.
type synthLLM struct {
	reply string
	err   error
}

func (m synthLLM) Chat(ctx context.Context, model string, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
	if m.err != nil {
		return engine.LLMResponse{}, m.err
	}
	return engine.LLMResponse{Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: m.reply}}, nil
}

func TestCast(t *testing.T) {
	ctx := context.Background()
	s := session.New("A jewel vanished from the castle vault.", "Detective")
	s.AddRoster("Guard, Witch")

	reply := `Sure! {"personality": "gruff", "goals": ["find the thief"], "user_attitude": "wary", "speech_style": "short", "avatar_meaning": "law", "interaction_style": "blunt", "catchphrase": "Halt!",}`
	synth := persona.NewSynthesizer(synthLLM{reply: reply}, "test-model", persona.DefaultOptions())
	o := newOrchestrator(&MockLLM{}, nil)

	results, err := o.Cast(ctx, s, synth, persona.ToneNeutral, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	for _, a := range s.Agents {
		if !a.Synthesized() || a.Persona.Catchphrase != "Halt!" || a.FallbackPersona {
			t.Errorf("agent %s = %+v", a.Name, a)
		}
	}

	// Already-synthesized agents are left alone unless forced.
	results, err = o.Cast(ctx, s, synth, persona.ToneNeutral, false)
	if err != nil || len(results) != 0 {
		t.Errorf("second Cast = %d results, %v", len(results), err)
	}
}

func TestCastFallsBackWhenModelIsDown(t *testing.T) {
	s := session.New("A heist.", "Detective")
	s.AddRoster("Guard, Witch")
	synth := persona.NewSynthesizer(synthLLM{err: errors.New("503 service unavailable")}, "test-model", persona.DefaultOptions())
	o := newOrchestrator(&MockLLM{}, nil)

	if _, err := o.Cast(context.Background(), s, synth, persona.ToneNeutral, true); err != nil {
		t.Fatal(err)
	}
	for _, a := range s.Agents {
		if !a.Synthesized() || !a.FallbackPersona {
			t.Errorf("agent %s = %+v", a.Name, a)
		}
	}
}

func TestCastRejectsInvalidSession(t *testing.T) {
	synth := persona.NewSynthesizer(synthLLM{}, "test-model", persona.DefaultOptions())
	o := newOrchestrator(&MockLLM{}, nil)

	_, err := o.Cast(context.Background(), session.New("", "Detective"), synth, persona.ToneNeutral, false)
	var ve *session.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("err = %v", err)
	}
}

func TestLoggerHookReportsExhaustedRetries(t *testing.T) {
	var buf bytes.Buffer
	hook := LoggerHook{L: log.New(&buf, "", 0), Model: "test-model"}
	llm := &MockLLM{Text: map[string]string{"Witch": " "}}
	o := newOrchestrator(llm, func(opts *Options) {
		opts.Retry = engine.RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 1}
		opts.Hook = hook
	})

	if _, err := o.Introductions(context.Background(), newScene(t)); err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); !strings.Contains(out, "agent=Witch skipped after retries") {
		t.Errorf("log missing exhausted retries:\n%s", out)
	}
}

func TestLoggerHook(t *testing.T) {
	var buf bytes.Buffer
	hook := LoggerHook{L: log.New(&buf, "", 0), Model: "test-model"}
	llm := &MockLLM{Fail: map[string]error{"Witch": errors.New("boom")}}
	o := newOrchestrator(llm, func(opts *Options) { opts.Hook = Hooks{NopHook{}, hook} })

	if _, err := o.Introductions(context.Background(), newScene(t)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"round=introductions", "agent=Guard", "agent=Witch skipped: [op=introductions subject=Witch] boom", "appended=1 skipped=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}
