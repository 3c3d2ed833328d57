package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ChamsBouzaiene/ensemble/internal/orchestrator"
	"github.com/ChamsBouzaiene/ensemble/internal/search"
	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

var errQuit = errors.New("quit")

type command struct {
	name  string
	usage string
	help  string
	run   func(ctx context.Context, r *repl, args string) error
}

type repl struct {
	env      *runtimeEnv
	sess     *session.Session
	out      io.Writer
	commands []command
}

func newREPL(env *runtimeEnv, sess *session.Session, out io.Writer) *repl {
	return &repl{env: env, sess: sess, out: out, commands: commandTable()}
}

// Run reads commands until EOF or /quit. Lines without a leading slash are
// said to everyone.
func (r *repl) Run(ctx context.Context, in io.Reader) error {
	s := bufio.NewScanner(in)
	for {
		fmt.Fprintf(r.out, "%s> ", r.sess.UserRole)
		if !s.Scan() {
			break
		}
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if err := r.Exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
	return s.Err()
}

// Exec runs one input line.
func (r *repl) Exec(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return cmdSay(ctx, r, line)
	}
	name, args, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	for _, c := range r.commands {
		if c.name == name {
			return c.run(ctx, r, strings.TrimSpace(args))
		}
	}
	return fmt.Errorf("unknown command /%s (try /help)", name)
}

func commandTable() []command {
	return []command{
		{"help", "/help", "Show this list", cmdHelp},
		{"scenario", "/scenario <text>", "Set the scenario", cmdScenario},
		{"role", "/role <name>", "Set the role you play", cmdRole},
		{"add", "/add <name> [avatar]", "Add one agent", cmdAdd},
		{"roster", "/roster <a, b, c>", "Add several agents with the default avatar", cmdRoster},
		{"remove", "/remove <agent>", "Remove an agent that has not spoken yet", cmdRemove},
		{"cast", "/cast [force]", "Create personas for the agents", cmdCast},
		{"intro", "/intro", "Every agent introduces itself", cmdIntro},
		{"continue", "/continue", "Every agent speaks again", cmdContinue},
		{"say", "/say <text>", "Speak to everyone (same as typing without a slash)", cmdSay},
		{"reply", "/reply <agent> <text>", "Speak publicly to one agent", cmdReply},
		{"private", "/private <agent> <text>", "Speak privately to one agent", cmdPrivate},
		{"probe", "/probe <agent>", "Another agent asks about your private talk with <agent>", cmdProbe},
		{"show", "/show [agent]", "Print the public transcript or a private channel", cmdShow},
		{"search", "/search <words>", "Search every channel of this session", cmdSearch},
		{"stats", "/stats", "Count entries and agents", cmdStats},
		{"sessions", "/sessions", "List saved sessions", cmdSessions},
		{"load", "/load <id>", "Open a saved session", cmdLoad},
		{"rename", "/rename <title>", "Rename this session", cmdRename},
		{"delete", "/delete <id>", "Delete a saved session", cmdDelete},
		{"new", "/new [scenario]", "Start over: drop agents and transcripts", cmdNew},
		{"clear", "/clear", "Clear every transcript, keep the agents", cmdClear},
		{"save", "/save", "Save this session now", cmdSave},
		{"quit", "/quit", "Leave", func(context.Context, *repl, string) error { return errQuit }},
	}
}

func cmdHelp(_ context.Context, r *repl, _ string) error {
	for _, c := range r.commands {
		fmt.Fprintf(r.out, "  %-26s %s\n", c.usage, c.help)
	}
	return nil
}

func cmdScenario(_ context.Context, r *repl, args string) error {
	if args == "" {
		fmt.Fprintf(r.out, "Scenario: %s\n", r.sess.Scenario)
		return nil
	}
	return r.sess.SetScenario(args)
}

func cmdRole(_ context.Context, r *repl, args string) error {
	if args == "" {
		return fmt.Errorf("usage: /role <name>")
	}
	return r.sess.SetUserRole(args)
}

func cmdAdd(_ context.Context, r *repl, args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return fmt.Errorf("usage: /add <name> [avatar]")
	}
	name, avatar := args, ""
	if len(fields) > 1 && !hasLetter(fields[len(fields)-1]) {
		avatar = fields[len(fields)-1]
		name = strings.Join(fields[:len(fields)-1], " ")
	}
	a, err := r.sess.AddAgent(name, avatar)
	if err != nil {
		return err
	}
	r.sess.ResetPersonas()
	fmt.Fprintf(r.out, "%s %s joined the scene\n", a.Avatar, a.Name)
	return nil
}

func cmdRemove(_ context.Context, r *repl, args string) error {
	if args == "" {
		return fmt.Errorf("usage: /remove <agent>")
	}
	if err := r.sess.RemoveAgent(args); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s left the scene\n", args)
	return nil
}

func cmdRoster(_ context.Context, r *repl, args string) error {
	added := r.sess.AddRoster(args)
	if len(added) == 0 {
		return fmt.Errorf("no new agents in %q", args)
	}
	r.sess.ResetPersonas()
	fmt.Fprintf(r.out, "%s joined the scene\n", strings.Join(added, ", "))
	return nil
}

func cmdCast(ctx context.Context, r *repl, args string) error {
	return r.cast(ctx, args == "force")
}

func (r *repl) cast(ctx context.Context, force bool) error {
	results, err := r.env.Orch.Cast(ctx, r.sess, r.env.Synth, r.env.Tone, force)
	if err != nil && !isPersistence(err) {
		return err
	}
	for _, a := range r.sess.Agents {
		note := ""
		if a.FallbackPersona {
			note = " (default persona, the model was unreachable)"
		}
		fmt.Fprintf(r.out, "%s %s: %s%s\n", a.Avatar, a.Name, a.Persona.Personality, note)
	}
	if len(results) > 0 && strings.HasPrefix(r.sess.Title, "New scene ") {
		fmt.Fprintf(r.out, "🎬 %s\n", r.env.Titler.TitleOrDefault(ctx, r.sess))
	}
	return r.reportCheckpoint(err)
}

// ensureCast synthesizes missing personas before the first round.
func (r *repl) ensureCast(ctx context.Context) error {
	if err := r.sess.Validate(); err != nil {
		return err
	}
	for _, a := range r.sess.Agents {
		if !a.Synthesized() {
			return r.cast(ctx, false)
		}
	}
	return nil
}

func cmdIntro(ctx context.Context, r *repl, _ string) error {
	return r.round(ctx, func() (*orchestrator.RoundResult, error) { return r.env.Orch.Introductions(ctx, r.sess) })
}

func cmdContinue(ctx context.Context, r *repl, _ string) error {
	return r.round(ctx, func() (*orchestrator.RoundResult, error) { return r.env.Orch.Continue(ctx, r.sess) })
}

func cmdSay(ctx context.Context, r *repl, args string) error {
	return r.round(ctx, func() (*orchestrator.RoundResult, error) { return r.env.Orch.Broadcast(ctx, r.sess, args) })
}

func cmdReply(ctx context.Context, r *repl, args string) error {
	agent, text, err := r.splitAgent(args)
	if err != nil {
		return err
	}
	return r.round(ctx, func() (*orchestrator.RoundResult, error) { return r.env.Orch.Reply(ctx, r.sess, agent, text) })
}

func cmdPrivate(ctx context.Context, r *repl, args string) error {
	agent, text, err := r.splitAgent(args)
	if err != nil {
		return err
	}
	return r.round(ctx, func() (*orchestrator.RoundResult, error) {
		return r.env.Orch.PrivateMessage(ctx, r.sess, agent, text)
	})
}

func cmdProbe(ctx context.Context, r *repl, args string) error {
	return r.round(ctx, func() (*orchestrator.RoundResult, error) { return r.env.Orch.CuriosityProbe(ctx, r.sess, args) })
}

// round runs one orchestrator round, prints what the agents said and
// refreshes the search index.
func (r *repl) round(ctx context.Context, fn func() (*orchestrator.RoundResult, error)) error {
	if err := r.ensureCast(ctx); err != nil {
		return err
	}
	res, err := fn()
	if res == nil {
		return err
	}
	for _, e := range res.Appended {
		if e.Speaker == r.sess.UserRole {
			continue
		}
		prefix := ""
		if e.Channel.IsPrivate() {
			prefix = "🔒 "
		}
		fmt.Fprintf(r.out, "%s%s %s: %s\n", prefix, e.Avatar, e.Speaker, e.Text)
	}
	for _, rerr := range res.Errors {
		fmt.Fprintf(r.out, "(%s did not answer: %v)\n", rerr.Agent, rerr.Err)
	}
	r.reindex()
	return r.reportCheckpoint(err)
}

// reportCheckpoint turns a failed save into a warning: the transcript is
// still in memory and /save retries.
func (r *repl) reportCheckpoint(err error) error {
	if isPersistence(err) {
		fmt.Fprintf(r.out, "⚠️  not saved: %v (use /save to retry)\n", err)
		return nil
	}
	return err
}

func isPersistence(err error) bool {
	var perr *session.PersistenceError
	return errors.As(err, &perr)
}

func (r *repl) reindex() {
	if r.env.Index == nil {
		return
	}
	if err := r.env.Index.IndexSession(r.sess); err != nil {
		r.env.Logger.Printf("⚠️  failed to index session %s: %v", r.sess.ID, err)
	}
}

func cmdShow(_ context.Context, r *repl, args string) error {
	ch := session.Public
	if args != "" && args != "public" {
		if _, ok := r.sess.Agent(args); !ok {
			return fmt.Errorf("unknown agent %s", args)
		}
		ch = session.Private(args)
	}
	entries := r.sess.History(ch)
	if len(entries) == 0 {
		fmt.Fprintln(r.out, "(nothing said yet)")
	}
	for _, e := range entries {
		fmt.Fprintf(r.out, "[%s] %s %s: %s\n", e.Timestamp.Local().Format("15:04"), e.Avatar, e.Speaker, e.Text)
	}
	return nil
}

func cmdSearch(_ context.Context, r *repl, args string) error {
	if r.env.Index == nil {
		return fmt.Errorf("search is disabled")
	}
	hits, err := r.env.Index.Search(search.Query{Text: args, SessionID: r.sess.ID, Limit: 10})
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Fprintln(r.out, "(no matches)")
	}
	for _, h := range hits {
		fmt.Fprintf(r.out, "%-16s %s: %s\n", h.Channel, h.Speaker, h.Text)
	}
	return nil
}

func cmdStats(_ context.Context, r *repl, _ string) error {
	st := r.sess.Stats()
	fmt.Fprintf(r.out, "%s | agents=%d public=%d private=%d\n", r.sess.Title, st.Agents, st.Public, st.Private)
	return nil
}

func cmdSessions(ctx context.Context, r *repl, _ string) error {
	list, err := r.env.Store.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(r.out, "(no saved sessions)")
	}
	for _, s := range list {
		fmt.Fprintf(r.out, "%s  %-30s %s  agents=%s public=%d\n",
			s.ID, s.Title, s.ModifiedAt.Local().Format("2006-01-02 15:04"), strings.Join(s.Agents, ","), s.PublicCount)
	}
	return nil
}

func cmdLoad(ctx context.Context, r *repl, args string) error {
	sess, err := r.env.Store.Load(ctx, args)
	if err != nil {
		return err
	}
	r.sess = sess
	fmt.Fprintf(r.out, "🎭 %s (you are the %s)\n", sess.Title, sess.UserRole)
	return nil
}

func cmdRename(ctx context.Context, r *repl, args string) error {
	if args == "" {
		return fmt.Errorf("usage: /rename <title>")
	}
	r.sess.Title = args
	return r.env.Orch.Checkpoint(ctx, r.sess)
}

func cmdDelete(ctx context.Context, r *repl, args string) error {
	ok, err := r.env.Store.Delete(ctx, args)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no session %s", args)
	}
	if r.env.Index != nil {
		_ = r.env.Index.RemoveSession(args)
	}
	fmt.Fprintf(r.out, "deleted %s\n", args)
	return nil
}

func cmdNew(_ context.Context, r *repl, args string) error {
	scenario := args
	if scenario == "" {
		scenario = r.sess.Scenario
	}
	r.sess = session.New(scenario, r.sess.UserRole)
	return nil
}

func cmdClear(_ context.Context, r *repl, _ string) error {
	r.sess.ClearPublic()
	r.sess.ClearAllPrivate()
	r.reindex()
	return nil
}

func cmdSave(ctx context.Context, r *repl, _ string) error {
	if err := r.env.Orch.Checkpoint(ctx, r.sess); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "saved %s\n", r.sess.ID)
	return nil
}

// splitAgent splits "<agent> <text>", matching the longest roster name so
// agents with spaces in their names work.
func (r *repl) splitAgent(args string) (string, string, error) {
	best := ""
	for _, name := range r.sess.Roster() {
		if strings.HasPrefix(args, name+" ") && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		name, text, ok := strings.Cut(args, " ")
		if !ok {
			return "", "", fmt.Errorf("usage: <agent> <text>")
		}
		return name, strings.TrimSpace(text), nil
	}
	return best, strings.TrimSpace(strings.TrimPrefix(args, best)), nil
}

func hasLetter(s string) bool {
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return false
}
