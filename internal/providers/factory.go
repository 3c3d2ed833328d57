package providers

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/ensemble/internal/engine"
)

// DefaultProvider is used when LLM_PROVIDER is unset.
const DefaultProvider = "deepseek"

// providerSpec describes how to build a client for one LLM_PROVIDER value.
// Env variables are derived from Prefix: <PREFIX>_API_KEY, <PREFIX>_MODEL, <PREFIX>_BASE_URL.
type providerSpec struct {
	Prefix       string
	DefaultModel string
	BaseURL      string
	// LocalKey is used when no API key is configured (local servers accept anything).
	LocalKey  string
	Anthropic bool
}

var providerSpecs = map[string]providerSpec{
	"openai":    {Prefix: "OPENAI", DefaultModel: "gpt-4o-mini"},
	"anthropic": {Prefix: "ANTHROPIC", DefaultModel: "claude-3-5-sonnet-20241022", Anthropic: true},
	"deepseek":  {Prefix: "DEEPSEEK", DefaultModel: "deepseek-chat", BaseURL: "https://api.deepseek.com/v1"},
	"kimi":      {Prefix: "KIMI", DefaultModel: "kimi-k2-250711", BaseURL: "https://ark.ap-southeast.bytepluses.com/api/v3"},
	"gemini":    {Prefix: "GEMINI", DefaultModel: "gemini-1.5-flash", BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai"},
	"lmstudio":  {Prefix: "LMSTUDIO", DefaultModel: "local-model", BaseURL: "http://localhost:1234/v1", LocalKey: "lm-studio"},
	"ollama":    {Prefix: "OLLAMA", DefaultModel: "llama3.1", BaseURL: "http://localhost:11434/v1", LocalKey: "ollama"},
	"glm":       {Prefix: "GLM", DefaultModel: "glm-4-plus", BaseURL: "https://open.bigmodel.cn/api/paas/v4"},
	"minimax":   {Prefix: "MINIMAX", DefaultModel: "abab6.5s-chat", BaseURL: "https://api.minimax.chat/v1"},
	"groq":      {Prefix: "GROQ", DefaultModel: "llama-3.1-70b-versatile", BaseURL: "https://api.groq.com/openai/v1"},
}

// SupportedProviders lists the accepted LLM_PROVIDER values, sorted.
func SupportedProviders() []string {
	names := make([]string, 0, len(providerSpecs))
	for name := range providerSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnvPrefix returns the environment variable prefix of provider.
func EnvPrefix(provider string) (string, bool) {
	spec, ok := providerSpecs[strings.ToLower(strings.TrimSpace(provider))]
	return spec.Prefix, ok
}

// NewLLMClientFromEnv creates an engine.LLMClient based on environment variables.
// It returns the client together with the resolved model name.
func NewLLMClientFromEnv(ctx context.Context) (engine.LLMClient, string, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	if provider == "" {
		provider = DefaultProvider
	}

	spec, ok := providerSpecs[provider]
	if !ok {
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER: %s (supported: %s)", provider, strings.Join(SupportedProviders(), ", "))
	}

	apiKey := os.Getenv(spec.Prefix + "_API_KEY")
	if apiKey == "" {
		if spec.LocalKey == "" {
			return nil, "", fmt.Errorf("%s_API_KEY not set", spec.Prefix)
		}
		apiKey = spec.LocalKey
	}

	modelName := os.Getenv(spec.Prefix + "_MODEL")
	if modelName == "" {
		modelName = spec.DefaultModel
	}

	if spec.Anthropic {
		client, err := NewAnthropicClient(apiKey, modelName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create %s client: %w", provider, err)
		}
		return client, modelName, nil
	}

	baseURL := spec.BaseURL
	if override := os.Getenv(spec.Prefix + "_BASE_URL"); override != "" {
		baseURL = override
	}

	client, err := NewOpenAIClient(apiKey, modelName, baseURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	return client, modelName, nil
}
