package ai

import "context"

// Runtime is the interface implemented by model backends: OpenRouter,
// a local Ollama daemon and AWS Bedrock.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used for runtime selection.
const (
	ProviderNone       = "none"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderLocal      = "local"
	ProviderBedrock    = "bedrock"
)

// Providers lists the selectable provider names in display order.
func Providers() []string {
	return []string{ProviderNone, ProviderOpenRouter, ProviderOllama, ProviderBedrock}
}
