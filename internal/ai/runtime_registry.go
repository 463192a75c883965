package ai

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(context.Context, RuntimeConfig) (Runtime, error)

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	// Common
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *zap.Logger
	// OpenRouter
	APIKey string
	// Ollama
	Host string
	// Bedrock
	Region string
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[strings.ToLower(name)] = f }

// GetRuntime creates a Runtime for the given provider. An empty name or
// "none" yields a nil Runtime and no error.
func GetRuntime(ctx context.Context, name string, cfg RuntimeConfig) (Runtime, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == ProviderNone {
		return nil, nil
	}
	f, ok := registry[name]
	if !ok {
		return nil, &UnknownProviderError{Name: name}
	}
	return f(ctx, cfg)
}

// init registers built-in runtimes.
func init() {
	RegisterRuntime(ProviderOpenRouter, func(_ context.Context, c RuntimeConfig) (Runtime, error) {
		return NewClient(c.APIKey, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay).WithLogger(c.Logger), nil
	})
	ollama := func(_ context.Context, c RuntimeConfig) (Runtime, error) {
		return NewOllamaClient(c.Host, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay).WithLogger(c.Logger), nil
	}
	RegisterRuntime(ProviderOllama, ollama)
	RegisterRuntime(ProviderLocal, ollama)
	RegisterRuntime(ProviderBedrock, func(ctx context.Context, c RuntimeConfig) (Runtime, error) {
		b, err := NewBedrockClient(ctx, c.Region, c.RetryMax)
		if err != nil {
			return nil, err
		}
		return b.WithLogger(c.Logger), nil
	})
}
