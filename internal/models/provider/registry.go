// Package provider implements the LLM/embedding/rerank provider registry:
// every backend this platform can talk to registers itself from its own
// init, and callers look providers up by name or detect one from a base
// URL to find the adapter that knows its request/response quirks.
package provider

import (
	"strings"
	"sync"

	"github.com/veridesk/platform/internal/types"
)

// ProviderName identifies one registered backend.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOllama    ProviderName = "ollama"
	ProviderJina      ProviderName = "jina"
	ProviderGeneric   ProviderName = "generic"
)

// Config is the subset of a models.Model row a Provider needs to validate
// and route a request.
type Config struct {
	APIKey    string
	BaseURL   string
	ModelName string
}

// ProviderInfo is the registry-facing metadata for one backend.
type ProviderInfo struct {
	Name         ProviderName
	DisplayName  string
	Description  string
	DefaultURLs  map[types.ModelType]string
	ModelTypes   []types.ModelType
	RequiresAuth bool
}

// GetDefaultURL returns the default base URL for a model type, or "" if
// this provider has no opinion for it.
func (i ProviderInfo) GetDefaultURL(modelType types.ModelType) string {
	return i.DefaultURLs[modelType]
}

// Supports reports whether this provider declares support for modelType.
func (i ProviderInfo) Supports(modelType types.ModelType) bool {
	for _, t := range i.ModelTypes {
		if t == modelType {
			return true
		}
	}
	return false
}

// Provider is implemented by every backend adapter registered in this
// package's init functions.
type Provider interface {
	Info() ProviderInfo
	ValidateConfig(config *Config) error
}

var (
	mu        sync.RWMutex
	providers = map[ProviderName]Provider{}
)

// Register adds a provider to the registry. Called from each adapter's
// init, never directly.
func Register(p Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[p.Info().Name] = p
}

// List returns every registered provider, in no particular order.
func List() []Provider {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		out = append(out, p)
	}
	return out
}

// Get looks up a provider by name.
func Get(name ProviderName) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := providers[name]
	return p, ok
}

// GetOrDefault returns the named provider, falling back to the generic
// OpenAI-compatible adapter when name is unregistered.
func GetOrDefault(name ProviderName) Provider {
	if p, ok := Get(name); ok {
		return p
	}
	p, _ := Get(ProviderGeneric)
	return p
}

// ListByModelType returns the ProviderInfo of every provider that supports
// modelType.
func ListByModelType(modelType types.ModelType) []ProviderInfo {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]ProviderInfo, 0, len(providers))
	for _, p := range providers {
		info := p.Info()
		if info.Supports(modelType) {
			out = append(out, info)
		}
	}
	return out
}

// DetectProvider guesses a ProviderName from a base URL's host, used when a
// tenant configures a custom BaseURL without naming a provider explicitly.
func DetectProvider(baseURL string) ProviderName {
	lower := strings.ToLower(baseURL)
	switch {
	case strings.Contains(lower, "api.openai.com"):
		return ProviderOpenAI
	case strings.Contains(lower, "api.anthropic.com"):
		return ProviderAnthropic
	case strings.Contains(lower, "api.jina.ai"):
		return ProviderJina
	case strings.Contains(lower, "11434"), strings.Contains(lower, "ollama"):
		return ProviderOllama
	default:
		return ProviderGeneric
	}
}
