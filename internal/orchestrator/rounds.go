package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/ensemble/internal/prompts"
	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

// Every round validates the session before any model call, returns
// validation failures as *session.ValidationError, and otherwise returns a
// result even when some agents were skipped. The error of a completed round
// is the checkpoint error, or the context error when the round was abandoned.

// Introductions asks every agent, in roster order, to introduce itself.
func (o *Orchestrator) Introductions(ctx context.Context, s *session.Session) (*RoundResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return o.everyone(ctx, s, RoundIntroductions, o.opts.IntroWindow, prompts.IDRoundIntroduce, nil)
}

// Continue lets every agent speak again from the recent public history.
func (o *Orchestrator) Continue(ctx context.Context, s *session.Session) (*RoundResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return o.everyone(ctx, s, RoundContinue, o.opts.ContinueWindow, prompts.IDRoundContinue, nil)
}

// Broadcast appends the user's message to the public channel and lets every
// agent answer it.
func (o *Orchestrator) Broadcast(ctx context.Context, s *session.Session, text string) (*RoundResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	text, err := requireText(text)
	if err != nil {
		return nil, err
	}
	user := s.AppendPublic(o.userEntry(s, text))
	return o.everyone(ctx, s, RoundBroadcast, o.opts.BroadcastWindow+1, prompts.IDRoundBroadcast, &user)
}

// everyone runs one public round over the whole roster. All windows come
// from the same snapshot, taken before the first agent answers.
func (o *Orchestrator) everyone(ctx context.Context, s *session.Session, round Round, size int, instrID string, user *session.Entry) (*RoundResult, error) {
	res := &RoundResult{Round: round}
	if user != nil {
		res.Appended = append(res.Appended, *user)
	}
	o.hook.OnRoundStart(ctx, s, round, s.Roster())

	window := s.Window(session.Public, size)
	calls := make([]call, 0, len(s.Agents))
	for _, a := range s.Agents {
		if c, ok := o.prepare(ctx, s, res, round, a, session.Public, window, instrID); ok {
			calls = append(calls, c)
		}
	}
	o.run(ctx, s, res, calls)

	o.hook.OnRoundDone(ctx, s, res)
	return res, o.finish(ctx, s)
}

// Reply appends the user's message to the public channel and lets only
// agent answer it.
func (o *Orchestrator) Reply(ctx context.Context, s *session.Session, agent, text string) (*RoundResult, error) {
	a, text, err := o.targeted(s, agent, text)
	if err != nil {
		return nil, err
	}

	res := &RoundResult{Round: RoundReply}
	res.Appended = append(res.Appended, s.AppendPublic(o.userEntry(s, text)))
	o.hook.OnRoundStart(ctx, s, RoundReply, []string{a.Name})

	window := s.Window(session.Public, o.opts.BroadcastWindow+1)
	if c, ok := o.prepare(ctx, s, res, RoundReply, a, session.Public, window, prompts.IDRoundReply); ok {
		o.run(ctx, s, res, []call{c})
	}

	o.hook.OnRoundDone(ctx, s, res)
	return res, o.finish(ctx, s)
}

// PrivateMessage talks to agent on its private channel. Nothing is written
// to the public channel.
func (o *Orchestrator) PrivateMessage(ctx context.Context, s *session.Session, agent, text string) (*RoundResult, error) {
	a, text, err := o.targeted(s, agent, text)
	if err != nil {
		return nil, err
	}

	ch := session.Private(a.Name)
	user, err := s.AppendPrivate(a.Name, o.userEntry(s, text))
	if err != nil {
		return nil, err
	}
	res := &RoundResult{Round: RoundPrivate, Appended: []session.Entry{user}}
	o.hook.OnRoundStart(ctx, s, RoundPrivate, []string{a.Name})

	window := s.Window(ch, o.opts.PrivateWindow)
	if c, ok := o.prepare(ctx, s, res, RoundPrivate, a, ch, window, prompts.IDRoundPrivate); ok {
		o.run(ctx, s, res, []call{c})
	}

	o.hook.OnRoundDone(ctx, s, res)
	return res, o.finish(ctx, s)
}

// CuriosityProbe has another agent ask peer, in public, about peer's
// private exchange with the user, then lets peer answer. Both invocations
// see public context only; peer sees nothing but the question.
func (o *Orchestrator) CuriosityProbe(ctx context.Context, s *session.Session, peer string) (*RoundResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	target, err := o.agent(s, peer)
	if err != nil {
		return nil, err
	}
	if len(s.Agents) < 2 {
		return nil, &session.ValidationError{Field: "agents", Reason: "a curiosity probe needs at least two agents"}
	}
	asker, ok := s.Agent(o.opts.Probe.Asker(s, target.Name))
	if !ok || asker.Name == target.Name {
		return nil, &session.ValidationError{Field: "agents", Reason: fmt.Sprintf("no agent available to probe %s", target.Name)}
	}

	res := &RoundResult{Round: RoundProbe}
	o.hook.OnRoundStart(ctx, s, RoundProbe, []string{asker.Name, target.Name})
	done := func() (*RoundResult, error) {
		o.hook.OnRoundDone(ctx, s, res)
		return res, o.finish(ctx, s)
	}

	window := s.Window(session.Public, o.opts.ProbeWindow)
	ask, ok := o.prepareWith(ctx, s, res, RoundProbe, asker, session.Public, window, prompts.IDRoundProbeAsk, map[string]string{
		"user_role": s.UserRole,
		"peer":      target.Name,
		"name":      asker.Name,
	})
	if !ok {
		return done()
	}
	question, ok := o.commit(ctx, s, res, ask, o.invoke(ctx, s, ask))
	if !ok {
		return done()
	}

	answer, ok := o.prepareWith(ctx, s, res, RoundProbe, target, session.Public, []session.Entry{question}, prompts.IDRoundProbeTell, map[string]string{
		"asker":     asker.Name,
		"user_role": s.UserRole,
		"name":      target.Name,
	})
	if ok {
		o.commit(ctx, s, res, answer, o.invoke(ctx, s, answer))
	}
	return done()
}

// prepare builds a call with the standard instruction variables.
func (o *Orchestrator) prepare(ctx context.Context, s *session.Session, res *RoundResult, round Round, a *session.Agent, ch session.Channel, window []session.Entry, instrID string) (call, bool) {
	return o.prepareWith(ctx, s, res, round, a, ch, window, instrID, map[string]string{
		"user_role": s.UserRole,
		"name":      a.Name,
	})
}

func (o *Orchestrator) prepareWith(ctx context.Context, s *session.Session, res *RoundResult, round Round, a *session.Agent, ch session.Channel, window []session.Entry, instrID string, vars map[string]string) (call, bool) {
	c := call{turn: Turn{Round: round, Agent: a.Name, Channel: ch}, agent: a}
	instruction, err := o.instruction(instrID, vars)
	if err == nil {
		c.msgs, err = o.messages(s, a, window, instruction)
	}
	if err != nil {
		rerr := &RoundError{Round: round, Agent: a.Name, Err: err}
		res.Errors = append(res.Errors, rerr)
		o.hook.OnAgentError(ctx, s, rerr)
		return call{}, false
	}
	return c, true
}

func (o *Orchestrator) targeted(s *session.Session, name, text string) (*session.Agent, string, error) {
	if err := s.Validate(); err != nil {
		return nil, "", err
	}
	a, err := o.agent(s, name)
	if err != nil {
		return nil, "", err
	}
	text, err = requireText(text)
	if err != nil {
		return nil, "", err
	}
	return a, text, nil
}

func (o *Orchestrator) agent(s *session.Session, name string) (*session.Agent, error) {
	a, ok := s.Agent(strings.TrimSpace(name))
	if !ok {
		return nil, &session.ValidationError{Field: "agent", Reason: fmt.Sprintf("unknown agent %s", name)}
	}
	return a, nil
}

func (o *Orchestrator) userEntry(s *session.Session, text string) session.Entry {
	return session.Entry{Speaker: s.UserRole, Avatar: o.opts.UserAvatar, Text: text}
}

func requireText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &session.ValidationError{Field: "text", Reason: "message must not be empty"}
	}
	return text, nil
}
