package ai

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"
)

// DefaultContextTokens is assumed for models missing from the catalog.
const DefaultContextTokens = 8192

// ModelInfo carries the context window and illustrative pricing of a model.
// Prices should be verified against the provider.
type ModelInfo struct {
	Name          string
	Provider      string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var (
	catalogMu sync.RWMutex
	models    = seedCatalog()
)

func seedCatalog() map[string]ModelInfo {
	m := map[string]ModelInfo{}
	add := func(provider, name string, ctx int, in, out float64) {
		m[name] = ModelInfo{Name: name, Provider: provider, ContextTokens: ctx, InputPerK: in, OutputPerK: out}
	}
	add(ProviderOpenRouter, "openai/gpt-4o-mini", 128000, 0.0006, 0.0024)
	add(ProviderOpenRouter, "openai/gpt-4o", 128000, 0.005, 0.015)
	add(ProviderOpenRouter, "openai/gpt-4.1-mini", 128000, 0.0005, 0.0015)
	add(ProviderOpenRouter, "anthropic/claude-3.5-sonnet", 200000, 0.003, 0.015)
	add(ProviderOpenRouter, "anthropic/claude-3-haiku", 200000, 0.00025, 0.00125)
	add(ProviderOpenRouter, "google/gemini-1.5-flash", 1000000, 0.0002, 0.0008)
	add(ProviderOpenRouter, "meta-llama/llama-3.1-8b-instruct", 131072, 0, 0)
	add(ProviderOpenRouter, "deepseek/deepseek-r1:free", 128000, 0, 0)
	add(ProviderBedrock, "anthropic.claude-3-haiku-20240307-v1:0", 200000, 0.00025, 0.00125)
	add(ProviderBedrock, "anthropic.claude-3-sonnet-20240229-v1:0", 200000, 0.003, 0.015)
	add(ProviderBedrock, "anthropic.claude-3-5-sonnet-20240620-v1:0", 200000, 0.003, 0.015)
	add(ProviderOllama, "llama3:latest", 8192, 0, 0)
	add(ProviderOllama, "llama3.1:8b-instruct", 8192, 0, 0)
	add(ProviderOllama, "mistral:7b-instruct", 8192, 0, 0)
	add(ProviderOllama, "phi3:mini-4k-instruct", 4096, 0, 0)
	add(ProviderOllama, "phi3:mini-128k-instruct", 128000, 0, 0)
	return m
}

// DefaultModel returns the model used for a provider when none is configured.
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderOllama, ProviderLocal:
		return "llama3.1:8b-instruct"
	case ProviderBedrock:
		return "anthropic.claude-3-haiku-20240307-v1:0"
	case ProviderOpenRouter:
		return "openai/gpt-4o-mini"
	}
	return ""
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	mi, ok := models[name]
	return mi, ok
}

// ContextBudget returns the context window of a model, or DefaultContextTokens.
func ContextBudget(model string) int {
	if mi, ok := LookupModel(model); ok && mi.ContextTokens > 0 {
		return mi.ContextTokens
	}
	return DefaultContextTokens
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
// Example entry:
// { "openai/gpt-4o-mini": {"Name":"openai/gpt-4o-mini","ContextTokens":128000,"InputPerK":0.0006,"OutputPerK":0.0024} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m map[string]ModelInfo
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for k, v := range m {
		if v.Name == "" {
			v.Name = k
		}
		models[k] = v
	}
}

// Catalog returns the catalog sorted by provider, then name.
func Catalog() []ModelInfo {
	catalogMu.RLock()
	out := make([]ModelInfo, 0, len(models))
	for _, v := range models {
		out = append(out, v)
	}
	catalogMu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Name < out[j].Name
	})
	return out
}
