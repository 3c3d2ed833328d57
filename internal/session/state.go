package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/ensemble/internal/persona"
)

// now is the session clock; timestamps are kept in UTC.
var now = func() time.Time { return time.Now().UTC() }

// NewID returns a fresh session or entry identifier.
func NewID() string {
	return uuid.NewString()
}

// DefaultTitle is the title given to a new session created at t.
func DefaultTitle(t time.Time) string {
	return "New scene " + t.Local().Format("15:04")
}

// New creates an empty session for scenario, played by the user as userRole.
func New(scenario, userRole string) *Session {
	t := now()
	return &Session{
		ID:         NewID(),
		Title:      DefaultTitle(t),
		Scenario:   strings.TrimSpace(scenario),
		UserRole:   strings.TrimSpace(userRole),
		Private:    make(map[string][]Entry),
		CreatedAt:  t,
		ModifiedAt: t,
	}
}

// Validate rejects sessions that cannot start a conversation.
func (s *Session) Validate() error {
	if strings.TrimSpace(s.Scenario) == "" {
		return &ValidationError{Field: "scenario", Reason: "must not be empty"}
	}
	if strings.TrimSpace(s.UserRole) == "" {
		return &ValidationError{Field: "user_role", Reason: "must not be empty"}
	}
	if len(s.Agents) == 0 {
		return &ValidationError{Field: "agents", Reason: "at least one agent is required"}
	}
	return nil
}

// AddAgent appends an agent to the roster. Names must be non-empty, unique
// and distinct from the user role.
func (s *Session) AddAgent(name, avatar string) (*Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "agent", Reason: "name must not be empty"}
	}
	if _, ok := s.Agent(name); ok {
		return nil, &ValidationError{Field: "agent", Reason: fmt.Sprintf("%s is already in the roster", name)}
	}
	if strings.EqualFold(name, s.UserRole) {
		return nil, &ValidationError{Field: "agent", Reason: fmt.Sprintf("%s is the user role", name)}
	}
	if avatar = strings.TrimSpace(avatar); avatar == "" {
		avatar = DefaultAvatar
	}

	a := &Agent{Name: name, Avatar: avatar}
	s.Agents = append(s.Agents, a)
	s.touch()
	return a, nil
}

// ParseRoster splits a comma-separated list of names, dropping blanks and
// repeats while keeping first-seen order.
func ParseRoster(list string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(list, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// AddRoster adds every name from a comma-separated list with the default
// avatar, skipping names already present. It returns the names added.
func (s *Session) AddRoster(list string) []string {
	var added []string
	for _, name := range ParseRoster(list) {
		if _, err := s.AddAgent(name, DefaultAvatar); err == nil {
			added = append(added, name)
		}
	}
	return added
}

// Agent looks up a roster member by name.
func (s *Session) Agent(name string) (*Agent, bool) {
	for _, a := range s.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Roster returns agent names in roster order.
func (s *Session) Roster() []string {
	names := make([]string, len(s.Agents))
	for i, a := range s.Agents {
		names[i] = a.Name
	}
	return names
}

// Peers returns every roster member except name, as persona peers.
func (s *Session) Peers(name string) []persona.Peer {
	peers := make([]persona.Peer, 0, len(s.Agents))
	for _, a := range s.Agents {
		if a.Name != name {
			peers = append(peers, persona.Peer{Name: a.Name, Avatar: a.Avatar})
		}
	}
	return peers
}

// PersonaRequest builds the synthesis request for agent name.
func (s *Session) PersonaRequest(name string, tone persona.Tone) (persona.Request, error) {
	a, ok := s.Agent(name)
	if !ok {
		return persona.Request{}, &ValidationError{Field: "agent", Reason: fmt.Sprintf("unknown agent %s", name)}
	}
	return persona.Request{
		Scenario: s.Scenario,
		Name:     a.Name,
		Avatar:   a.Avatar,
		Peers:    s.Peers(a.Name),
		UserRole: s.UserRole,
		Tone:     tone,
	}, nil
}

// SetPersona stores a synthesized persona on agent name.
func (s *Session) SetPersona(name string, res persona.Result) error {
	a, ok := s.Agent(name)
	if !ok {
		return &ValidationError{Field: "agent", Reason: fmt.Sprintf("unknown agent %s", name)}
	}
	a.Persona = res.Spec
	a.SystemPrompt = res.SystemPrompt
	a.FallbackPersona = res.Fallback
	s.touch()
	return nil
}

// SetScenario replaces the scenario. Every system prompt embeds the old
// one, so all of them are dropped.
func (s *Session) SetScenario(scenario string) error {
	scenario = strings.TrimSpace(scenario)
	if scenario == "" {
		return &ValidationError{Field: "scenario", Reason: "must not be empty"}
	}
	s.Scenario = scenario
	s.ResetPersonas()
	return nil
}

// SetUserRole replaces the role the user plays and drops every system
// prompt. The role may not match an agent name, ignoring case.
func (s *Session) SetUserRole(role string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return &ValidationError{Field: "user_role", Reason: "must not be empty"}
	}
	for _, a := range s.Agents {
		if strings.EqualFold(a.Name, role) {
			return &ValidationError{Field: "user_role", Reason: fmt.Sprintf("%s is already an agent", a.Name)}
		}
	}
	s.UserRole = role
	s.ResetPersonas()
	return nil
}

// RemoveAgent drops name from the roster along with its private channel.
// Agents that already appear in a transcript cannot be removed. The
// remaining system prompts list a stale roster and are dropped.
func (s *Session) RemoveAgent(name string) error {
	name = strings.TrimSpace(name)
	idx := -1
	for i, a := range s.Agents {
		if a.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return &ValidationError{Field: "agent", Reason: fmt.Sprintf("unknown agent %s", name)}
	}
	spoke := len(s.Private[name]) > 0
	for _, e := range s.Public {
		if e.Speaker == name {
			spoke = true
			break
		}
	}
	if spoke {
		return &ValidationError{Field: "agent", Reason: fmt.Sprintf("%s already has transcript entries", name)}
	}

	s.Agents = append(s.Agents[:idx:idx], s.Agents[idx+1:]...)
	delete(s.Private, name)
	s.ResetPersonas()
	return nil
}

// ResetPersonas drops every system prompt so the next cast synthesizes the
// whole roster again.
func (s *Session) ResetPersonas() {
	for _, a := range s.Agents {
		a.SystemPrompt = ""
		a.FallbackPersona = false
	}
	s.touch()
}

// AppendPublic appends e to the public channel and returns the stored entry.
func (s *Session) AppendPublic(e Entry) Entry {
	e = s.stamp(e, Public, s.Public)
	s.Public = append(s.Public, e)
	s.touch()
	return e
}

// AppendPrivate appends e to agent's private channel.
func (s *Session) AppendPrivate(agent string, e Entry) (Entry, error) {
	if _, ok := s.Agent(agent); !ok {
		return Entry{}, &ValidationError{Field: "agent", Reason: fmt.Sprintf("unknown agent %s", agent)}
	}
	if s.Private == nil {
		s.Private = make(map[string][]Entry)
	}
	e = s.stamp(e, Private(agent), s.Private[agent])
	s.Private[agent] = append(s.Private[agent], e)
	s.touch()
	return e, nil
}

// stamp assigns channel, ID and a timestamp strictly after the channel's
// last entry.
func (s *Session) stamp(e Entry, ch Channel, history []Entry) Entry {
	e.Channel = ch
	if e.ID == "" {
		e.ID = NewID()
	}
	ts := now()
	if n := len(history); n > 0 && !ts.After(history[n-1].Timestamp) {
		ts = history[n-1].Timestamp.Add(time.Nanosecond)
	}
	e.Timestamp = ts
	return e
}

// History returns a copy of the whole channel.
func (s *Session) History(ch Channel) []Entry {
	return s.Window(ch, -1)
}

// Window returns the size most recent entries of ch in chronological order.
// A negative size returns the whole channel; size is clipped to what exists.
func (s *Session) Window(ch Channel, size int) []Entry {
	var src []Entry
	if ch == Public {
		src = s.Public
	} else if ch.IsPrivate() {
		src = s.Private[ch.Agent()]
	}
	if size < 0 || size > len(src) {
		size = len(src)
	}
	out := make([]Entry, size)
	copy(out, src[len(src)-size:])
	return out
}

// ClearPublic truncates the public channel.
func (s *Session) ClearPublic() {
	s.Public = nil
	s.touch()
}

// ClearAllPrivate truncates every private channel.
func (s *Session) ClearAllPrivate() {
	s.Private = make(map[string][]Entry)
	s.touch()
}

// Reset starts a new scenario in the same session: roster and all
// transcripts are dropped.
func (s *Session) Reset(scenario, userRole string) {
	s.Scenario = strings.TrimSpace(scenario)
	s.UserRole = strings.TrimSpace(userRole)
	s.Agents = nil
	s.Public = nil
	s.Private = make(map[string][]Entry)
	s.touch()
}

// Stats counts entries and agents.
type Stats struct {
	Public  int
	Private int
	Agents  int
}

// Stats returns current counters.
func (s *Session) Stats() Stats {
	st := Stats{Public: len(s.Public), Agents: len(s.Agents)}
	for _, entries := range s.Private {
		st.Private += len(entries)
	}
	return st
}

// Summarize returns the listing view of s.
func (s *Session) Summarize() Summary {
	st := s.Stats()
	return Summary{
		ID:           s.ID,
		Title:        s.Title,
		Scenario:     excerpt(s.Scenario, 80),
		UserRole:     s.UserRole,
		Agents:       s.Roster(),
		PublicCount:  st.Public,
		PrivateCount: st.Private,
		CreatedAt:    s.CreatedAt,
		ModifiedAt:   s.ModifiedAt,
	}
}

func (s *Session) touch() {
	t := now()
	if !t.After(s.ModifiedAt) {
		t = s.ModifiedAt.Add(time.Nanosecond)
	}
	s.ModifiedAt = t
}

func excerpt(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "…"
}
