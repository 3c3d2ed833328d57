package engine

import (
	"fmt"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer provides token counting for text.
// Different models use different tokenization schemes, so the model name is required.
type Tokenizer interface {
	CountTokens(text string, model string) (int, error)
}

// EstimateTokens provides a rough token count estimation.
// Heuristic: (runes / 4) + (whitespace / 6), minimum 1 for non-empty text.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}

	charCount := len([]rune(text))
	whitespaceCount := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")

	estimated := (charCount / 4) + (whitespaceCount / 6)
	if estimated < 1 {
		return 1
	}
	return estimated
}

// DefaultTokenizer uses estimation as a fallback when no specific tokenizer is available.
type DefaultTokenizer struct{}

// CountTokens implements Tokenizer using estimation.
func (t DefaultTokenizer) CountTokens(text string, model string) (int, error) {
	return EstimateTokens(text), nil
}

// TikTokenTokenizer counts tokens with a BPE encoding. Encodings are loaded
// lazily per encoding name and cached for the life of the process.
type TikTokenTokenizer struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewTikTokenTokenizer creates an empty tokenizer cache.
func NewTikTokenTokenizer() *TikTokenTokenizer {
	return &TikTokenTokenizer{encoders: make(map[string]*tiktoken.Tiktoken)}
}

// CountTokens implements Tokenizer. It falls back to EstimateTokens when the
// BPE ranks cannot be loaded (offline machines without a cache).
func (t *TikTokenTokenizer) CountTokens(text string, model string) (int, error) {
	if text == "" {
		return 0, nil
	}
	enc, err := t.encoder(model)
	if err != nil {
		return EstimateTokens(text), nil
	}
	return len(enc.Encode(text, nil, nil)), nil
}

func (t *TikTokenTokenizer) encoder(model string) (*tiktoken.Tiktoken, error) {
	name := encodingForModel(model)

	t.mu.Lock()
	defer t.mu.Unlock()
	if enc, ok := t.encoders[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", name, err)
	}
	t.encoders[name] = enc
	return enc, nil
}

func encodingForModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "gpt-4.1"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}

// CountTokensForMessages counts tokens for a slice of messages.
// It includes formatting overhead (role names, separators) in the count.
func CountTokensForMessages(tokenizer Tokenizer, messages []ChatMessage, model string) (int, error) {
	total := 0
	for _, msg := range messages {
		roleTokens, err := tokenizer.CountTokens(string(msg.Role), model)
		if err != nil {
			return 0, fmt.Errorf("failed to count role tokens: %w", err)
		}
		contentTokens, err := tokenizer.CountTokens(msg.Content, model)
		if err != nil {
			return 0, fmt.Errorf("failed to count content tokens: %w", err)
		}
		// ~4 tokens of framing per message
		total += roleTokens + contentTokens + 4
	}
	return total, nil
}

var (
	sharedTikToken     *TikTokenTokenizer
	sharedTikTokenOnce sync.Once
)

// GetTokenizerForModel returns an appropriate tokenizer for the given model.
// OpenAI-family models get the BPE tokenizer; everything else is estimated.
func GetTokenizerForModel(model string) Tokenizer {
	m := strings.ToLower(model)
	if strings.HasPrefix(m, "gpt-") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "deepseek") {
		sharedTikTokenOnce.Do(func() {
			sharedTikToken = NewTikTokenTokenizer()
		})
		return sharedTikToken
	}
	return DefaultTokenizer{}
}
