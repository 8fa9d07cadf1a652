// Package completion provides the text-completion callers used by the fact
// extractor and the decision classifier. Both consume a CallFunc: one prompt
// in, one raw completion out. Provider specifics (auth, request shape) stay
// behind the caller constructors.
package completion

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	providerOpenAI    = "openai"
	providerAnthropic = "anthropic"
	providerOllama    = "ollama"
)

// CallFunc is the signature for an LLM inference call.
type CallFunc func(ctx context.Context, prompt string) (string, error)

// Config holds configuration for creating a completion caller.
type Config struct {
	Provider string // "openai", "anthropic", or "ollama"
	Model    string // e.g. "gpt-4o-mini", "claude-haiku-4-5-20251001"
	APIKey   string // explicit API key (highest priority)
	BaseURL  string // override base URL
}

// NewCaller creates a CallFunc based on the provided configuration.
// Resolution order for the API key:
//  1. Explicit APIKey in config
//  2. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
//
// Ollama needs no key and is the fallback when none is found.
func NewCaller(cfg Config) (CallFunc, error) {
	provider := strings.ToLower(cfg.Provider)
	model := cfg.Model

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = resolveAPIKeyFromEnv(provider)
	}

	switch provider {
	case providerOpenAI, "":
		if apiKey == "" {
			return nil, fmt.Errorf("no API key found for openai (set OPENAI_API_KEY)")
		}
		if model == "" {
			model = "gpt-4o-mini"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
		return newOpenAICaller(apiKey, model, baseURL), nil

	case providerAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("no API key found for anthropic (set ANTHROPIC_API_KEY)")
		}
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}
		return newAnthropicCaller(apiKey, model, baseURL), nil

	case providerOllama:
		if model == "" {
			model = "llama3.2"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return newOllamaCaller(model, baseURL), nil

	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", cfg.Provider)
	}
}

func resolveAPIKeyFromEnv(provider string) string {
	switch provider {
	case providerAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case providerOpenAI, "":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}

// ExtractJSON slices the first top-level JSON object or array out of a
// completion that may be wrapped in markdown code fences or prose.
func ExtractJSON(response string) string {
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		idx := strings.Index(response, pair[0])
		if idx < 0 {
			continue
		}
		endIdx := strings.LastIndex(response, pair[1])
		if endIdx > idx {
			return response[idx : endIdx+1]
		}
	}
	return response
}
