// Package completion calls a general-purpose language model once per prompt
// and helps callers pull structured JSON out of its free-form replies.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/papercomputeco/parley/pkg/credentials"
	"github.com/papercomputeco/parley/pkg/logger"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"

	defaultTimeout = 60 * time.Second

	defaultTemperature    = 0.7
	structuredTemperature = 0.3
	defaultMaxTokens      = 2000

	jsonOnlyInstruction = "\n\nReturn ONLY valid JSON, no markdown or extra text."
)

// Prompt is a single completion request. Structured prompts lower the
// temperature and ask the model to answer with JSON only.
type Prompt struct {
	System     string
	User       string
	Structured bool
}

func (p Prompt) temperature() float64 {
	if p.Structured {
		return structuredTemperature
	}
	return defaultTemperature
}

func (p Prompt) system() string {
	if p.Structured {
		return p.System + jsonOnlyInstruction
	}
	return p.System
}

// Completer produces one completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Func adapts a function to the Completer interface.
type Func func(ctx context.Context, p Prompt) (string, error)

func (f Func) Complete(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// Config holds configuration for creating a Completer.
type Config struct {
	Provider string // "openrouter", "openai", "anthropic", or "ollama"
	Model    string
	APIKey   string               // explicit API key (highest priority)
	BaseURL  string               // override base URL
	CredMgr  *credentials.Manager // keys stored by parley auth
	Timeout  time.Duration
	Logger   *slog.Logger
}

// New creates a Completer for the configured provider.
// API keys resolve from the explicit key, then the credentials file, then the
// provider's environment variable. Ollama needs no key.
func New(cfg Config) (Completer, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = ProviderOpenRouter
	}

	apiKey := cfg.APIKey
	if provider != ProviderOllama {
		if cfg.CredMgr != nil {
			key, err := cfg.CredMgr.ResolveAPIKey(provider, apiKey)
			if err != nil {
				return nil, fmt.Errorf("resolving %s api key: %w", provider, err)
			}
			apiKey = key
		} else if apiKey == "" {
			if env := credentials.EnvVarForProvider(provider); env != "" {
				apiKey = os.Getenv(env)
			}
		}
		if apiKey == "" {
			return nil, fmt.Errorf("no API key for %s: run 'parley auth %s' or set %s",
				provider, provider, credentials.EnvVarForProvider(provider))
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("provider", provider)

	base := strings.TrimRight(cfg.BaseURL, "/")
	client := &http.Client{}

	switch provider {
	case ProviderOpenRouter, ProviderOpenAI:
		if base == "" {
			base = defaultBaseURL(provider)
		}
		model := orDefault(cfg.Model, defaultModel(provider))
		return withTimeout(timeout, log, newOpenAICaller(client, apiKey, model, base, provider)), nil

	case ProviderAnthropic:
		if base == "" {
			base = "https://api.anthropic.com"
		}
		model := orDefault(cfg.Model, "claude-3-5-haiku-latest")
		return withTimeout(timeout, log, newAnthropicCaller(client, apiKey, model, base)), nil

	case ProviderOllama:
		if base == "" {
			base = "http://localhost:11434"
		}
		model := orDefault(cfg.Model, "llama3.2")
		return withTimeout(timeout, log, newOllamaCaller(client, model, base)), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func withTimeout(timeout time.Duration, log *slog.Logger, next Func) Func {
	return func(ctx context.Context, p Prompt) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		out, err := next(ctx, p)
		if err != nil {
			log.Debug("completion failed", "error", err, "elapsed", time.Since(start))
			return "", err
		}
		log.Debug("completion finished", "structured", p.Structured, "chars", len(out), "elapsed", time.Since(start))
		return out, nil
	}
}

func defaultBaseURL(provider string) string {
	if provider == ProviderOpenAI {
		return "https://api.openai.com/v1"
	}
	return "https://openrouter.ai/api/v1"
}

func defaultModel(provider string) string {
	if provider == ProviderOpenAI {
		return "gpt-4o-mini"
	}
	return "deepseek/deepseek-chat"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
