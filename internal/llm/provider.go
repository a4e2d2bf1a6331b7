// Package llm is a small chat-completion adapter used for transcript
// analysis and dialogue turns. Providers speak plain HTTP+JSON.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultFlag is the provider/model used when none is configured.
const DefaultFlag = "openai/gpt-4o-mini"

// defaultTimeout bounds a single completion request.
const defaultTimeout = 60 * time.Second

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name returns "provider/model", e.g. "openai/gpt-4o-mini".
	Name() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // Max tokens to generate (0 = provider default)
	Temperature float64 // 0.0-2.0 (0 = deterministic)
	Model       string  // Override model for this request (empty = provider default)
	Format      string  // "json" for structured output, empty for plain text
	System      string  // System prompt (optional)
}

// Config holds provider configuration.
type Config struct {
	Provider string // "openai", "openrouter", "deepseek", "google"
	Model    string // e.g. "gpt-4o-mini", "gemini-2.5-flash"
	APIKey   string // API key (empty = read from env)
	BaseURL  string // Optional URL override
}

type backend struct {
	keyEnvs []string
	model   string
	baseURL string
}

var backends = map[string]backend{
	"openai":     {keyEnvs: []string{"OPENAI_API_KEY"}, model: "gpt-4o-mini", baseURL: "https://api.openai.com/v1"},
	"openrouter": {keyEnvs: []string{"OPENROUTER_API_KEY"}, model: "openai/gpt-4o-mini", baseURL: "https://openrouter.ai/api/v1"},
	"deepseek":   {keyEnvs: []string{"DEEPSEEK_API_KEY"}, model: "deepseek-chat", baseURL: "https://api.deepseek.com/v1"},
	"google":     {keyEnvs: []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}, model: "gemini-2.5-flash", baseURL: "https://generativelanguage.googleapis.com/v1beta"},
}

// Supported lists the provider names NewProvider accepts.
const Supported = "openai, openrouter, deepseek, google"

// NewProvider creates an LLM provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	name := strings.ToLower(cfg.Provider)
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: %s)", cfg.Provider, Supported)
	}

	key := cfg.APIKey
	for _, env := range b.keyEnvs {
		if key != "" {
			break
		}
		key = os.Getenv(env)
	}
	if key == "" {
		return nil, fmt.Errorf("%s provider requires %s env var", name, strings.Join(b.keyEnvs, " or "))
	}
	model := cfg.Model
	if model == "" {
		model = b.model
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = b.baseURL
	}

	if name == "google" {
		return newGoogleProvider(key, model, baseURL), nil
	}
	return newChatProvider(name, key, model, baseURL), nil
}

// ParseLLMFlag parses a --llm flag value into a Config.
// Format: "provider/model" e.g. "openai/gpt-4o-mini", "openrouter/openai/gpt-4o-mini".
func ParseLLMFlag(flag string) (Config, error) {
	if flag == "" {
		flag = DefaultFlag
	}

	parts := strings.SplitN(flag, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		return Config{}, fmt.Errorf("invalid --llm format %q: expected provider/model (e.g., %s)", flag, DefaultFlag)
	}

	provider := strings.ToLower(parts[0])
	if _, ok := backends[provider]; !ok {
		return Config{}, fmt.Errorf("unknown provider %q in --llm flag (supported: %s)", provider, Supported)
	}
	return Config{Provider: provider, Model: parts[1]}, nil
}
