package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/ensemble/internal/persona"
)

// Channel names a transcript isolation domain: the shared public channel or
// one agent's private channel with the user.
type Channel string

// Public is the shared channel every agent can see.
const Public Channel = "public"

const privatePrefix = "private:"

// Private returns the private channel between the user and agent.
func Private(agent string) Channel {
	return Channel(privatePrefix + agent)
}

// IsPrivate reports whether c is a private channel.
func (c Channel) IsPrivate() bool {
	return strings.HasPrefix(string(c), privatePrefix)
}

// Agent returns the peer agent of a private channel, or "".
func (c Channel) Agent() string {
	if !c.IsPrivate() {
		return ""
	}
	return strings.TrimPrefix(string(c), privatePrefix)
}

// DefaultAvatar is used for agents added without a glyph.
const DefaultAvatar = "👤"

// Agent is one roster member.
type Agent struct {
	Name         string       `json:"name"`
	Avatar       string       `json:"avatar"`
	Persona      persona.Spec `json:"persona"`
	SystemPrompt string       `json:"system_prompt"`
	// FallbackPersona is set when synthesis could not reach the model.
	FallbackPersona bool `json:"fallback_persona,omitempty"`
}

// Synthesized reports whether the agent has a system prompt.
func (a *Agent) Synthesized() bool {
	return a.SystemPrompt != ""
}

// Entry is one transcript line.
type Entry struct {
	ID        string    `json:"id"`
	Speaker   string    `json:"speaker"`
	Avatar    string    `json:"avatar"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Channel   Channel   `json:"channel"`
}

// Session is a scenario with its roster and transcripts. It is owned by one
// control flow at a time and is not safe for concurrent mutation.
type Session struct {
	ID         string
	Title      string
	Scenario   string
	UserRole   string
	Agents     []*Agent // roster order
	Public     []Entry
	Private    map[string][]Entry // agent name -> private channel
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Summary is the listing view of a stored session.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Scenario     string    `json:"scenario"`
	UserRole     string    `json:"user_role"`
	Agents       []string  `json:"agents"`
	PublicCount  int       `json:"public_count"`
	PrivateCount int       `json:"private_count"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// document holds the fixed fields of the persisted form. Private channels
// are stored next to them as "private_<agent>" keys.
type document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Scenario   string    `json:"scenario"`
	UserRole   string    `json:"user_role"`
	Agents     []*Agent  `json:"agents"`
	Public     []Entry   `json:"public_history"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

const privateKeyPrefix = "private_"

// MarshalJSON writes the fixed fields followed by one "private_<agent>" key
// per private channel, roster agents first.
func (s *Session) MarshalJSON() ([]byte, error) {
	doc := document{
		ID:         s.ID,
		Title:      s.Title,
		Scenario:   s.Scenario,
		UserRole:   s.UserRole,
		Agents:     s.Agents,
		Public:     s.Public,
		CreatedAt:  s.CreatedAt,
		ModifiedAt: s.ModifiedAt,
	}
	if doc.Agents == nil {
		doc.Agents = []*Agent{}
	}
	if doc.Public == nil {
		doc.Public = []Entry{}
	}

	base, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, name := range s.privateOrder() {
		entries := s.Private[name]
		if entries == nil {
			entries = []Entry{}
		}
		key, err := json.Marshal(privateKeyPrefix + name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("marshal private channel %s: %w", name, err)
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (s *Session) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Session{
		ID:         doc.ID,
		Title:      doc.Title,
		Scenario:   doc.Scenario,
		UserRole:   doc.UserRole,
		Agents:     doc.Agents,
		Public:     doc.Public,
		Private:    make(map[string][]Entry),
		CreatedAt:  doc.CreatedAt,
		ModifiedAt: doc.ModifiedAt,
	}
	for key, val := range raw {
		if !strings.HasPrefix(key, privateKeyPrefix) {
			continue
		}
		var entries []Entry
		if err := json.Unmarshal(val, &entries); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if entries == nil {
			entries = []Entry{}
		}
		s.Private[strings.TrimPrefix(key, privateKeyPrefix)] = entries
	}
	return nil
}

// privateOrder lists private channel owners: roster order first, then any
// remaining names sorted.
func (s *Session) privateOrder() []string {
	names := make([]string, 0, len(s.Private))
	seen := make(map[string]bool, len(s.Private))
	for _, a := range s.Agents {
		if _, ok := s.Private[a.Name]; ok {
			names = append(names, a.Name)
			seen[a.Name] = true
		}
	}
	var rest []string
	for name := range s.Private {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
