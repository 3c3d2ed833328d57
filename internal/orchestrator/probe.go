package orchestrator

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

// ProbePolicy picks the agent that asks about peer's private exchange.
// Callers guarantee the roster holds at least one agent besides peer.
type ProbePolicy interface {
	Asker(s *session.Session, peer string) string
}

// FirstOtherPolicy picks the first roster agent that is not peer.
type FirstOtherPolicy struct{}

func (FirstOtherPolicy) Asker(s *session.Session, peer string) string {
	for _, a := range s.Agents {
		if a.Name != peer {
			return a.Name
		}
	}
	return ""
}

// RandomPolicy picks uniformly among the agents other than peer.
type RandomPolicy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPolicy returns a RandomPolicy seeded with seed.
func NewRandomPolicy(seed int64) *RandomPolicy {
	return &RandomPolicy{rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomPolicy) Asker(s *session.Session, peer string) string {
	others := make([]string, 0, len(s.Agents))
	for _, a := range s.Agents {
		if a.Name != peer {
			others = append(others, a.Name)
		}
	}
	if len(others) == 0 {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return others[p.rng.Intn(len(others))]
}

// ParseProbePolicy maps a configuration name ("first" or "random") to a policy.
func ParseProbePolicy(name string, seed int64) (ProbePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "first":
		return FirstOtherPolicy{}, nil
	case "random":
		return NewRandomPolicy(seed), nil
	default:
		return nil, fmt.Errorf("unknown probe policy %q (supported: first, random)", name)
	}
}
