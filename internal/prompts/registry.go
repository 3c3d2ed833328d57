package prompts

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// PromptRegistry manages versioned prompts.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]map[PromptVersion]*Prompt // ID -> Version -> Prompt
}

var defaultRegistry *PromptRegistry
var defaultRegistryOnce sync.Once

// DefaultRegistry returns the process-wide registry holding the built-in
// persona and round templates.
func DefaultRegistry() *PromptRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewPromptRegistry()
		registerPersonaPrompts(defaultRegistry)
		registerRoundPrompts(defaultRegistry)
	})
	return defaultRegistry
}

// NewPromptRegistry creates an empty prompt registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{
		prompts: make(map[string]map[PromptVersion]*Prompt),
	}
}

// Register adds or replaces a prompt version.
func (r *PromptRegistry) Register(p *Prompt) {
	if p == nil || p.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.prompts[p.ID] == nil {
		r.prompts[p.ID] = make(map[PromptVersion]*Prompt)
	}
	r.prompts[p.ID][p.Version] = p
}

// Get retrieves a specific version of a prompt.
func (r *PromptRegistry) Get(id string, version PromptVersion) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}
	prompt, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("prompt %s version %s not found", id, version)
	}
	return prompt, nil
}

// GetLatest retrieves the highest non-deprecated version of a prompt.
// If every version is deprecated, the highest version is returned.
func (r *PromptRegistry) GetLatest(id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}

	var latest, latestAny *Prompt
	for version, prompt := range versions {
		if latestAny == nil || compareVersions(version, latestAny.Version) > 0 {
			latestAny = prompt
		}
		if prompt.Deprecated {
			continue
		}
		if latest == nil || compareVersions(version, latest.Version) > 0 {
			latest = prompt
		}
	}
	if latest == nil {
		latest = latestAny
	}
	return latest, nil
}

// Render fills the latest version of prompt id with vars.
func (r *PromptRegistry) Render(id string, vars map[string]string) (string, error) {
	p, err := r.GetLatest(id)
	if err != nil {
		return "", err
	}
	b := &PromptBuilder{basePrompt: p, fragments: []string{p.Content}, variables: make(map[string]string, len(vars))}
	for k, v := range vars {
		b.SetVariable(k, v)
	}
	return b.Build()
}

// List returns all prompt IDs in the registry, sorted.
func (r *PromptRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.prompts))
	for id := range r.prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Versions returns all versions for a given prompt ID, lowest first.
func (r *PromptRegistry) Versions(id string) []PromptVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok {
		return nil
	}
	result := make([]PromptVersion, 0, len(versions))
	for version := range versions {
		result = append(result, version)
	}
	sort.Slice(result, func(i, j int) bool {
		return compareVersions(result[i], result[j]) < 0
	})
	return result
}

// compareVersions compares dotted numeric versions; non-numeric parts
// compare as strings.
func compareVersions(a, b PromptVersion) int {
	as := strings.Split(string(a), ".")
	bs := strings.Split(string(b), ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var ap, bp string
		if i < len(as) {
			ap = as[i]
		}
		if i < len(bs) {
			bp = bs[i]
		}
		an, aerr := strconv.Atoi(ap)
		bn, berr := strconv.Atoi(bp)
		switch {
		case aerr == nil && berr == nil:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		case ap != bp:
			return strings.Compare(ap, bp)
		}
	}
	return 0
}
