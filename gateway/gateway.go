package gateway

import (
	"context"
	"time"

	"github.com/roundtable-ai/roundtable/types"
)

// Result is the outcome of a single generation.
type Result struct {
	// Content is the generated response text.
	Content string `json:"content"`

	// TokensUsed is the total token count reported by the provider, or an
	// estimate when the provider omits usage.
	TokensUsed int `json:"tokens_used"`

	// ProcessingTime is the wall-clock duration of the provider call.
	ProcessingTime time.Duration `json:"processing_time"`

	// Provider and Model identify the configuration that produced this.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Generator produces response text for a personality. Implementations fail
// with a types.Error carrying code PROVIDER on transport/auth/quota failure.
// The orchestrator propagates these errors without retrying; retries, if any,
// belong behind this interface.
type Generator interface {
	Generate(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*Result, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*Result, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*Result, error) {
	return f(ctx, p, prompt, history)
}

// ProviderConfig describes one upstream endpoint.
type ProviderConfig struct {
	// Name is the identifier personalities reference via Personality.Provider.
	Name string `json:"name" yaml:"name"`

	// BaseURL is the API root, e.g. https://api.openai.com/v1.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey is sent as a bearer token.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Timeout bounds a single generation call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Registry dispatches generations to the provider named by the personality.
type Registry struct {
	providers map[string]Generator
}

// NewRegistry creates a registry over the given named generators.
func NewRegistry(providers map[string]Generator) *Registry {
	if providers == nil {
		providers = make(map[string]Generator)
	}
	return &Registry{providers: providers}
}

// Register adds or replaces a named generator.
func (r *Registry) Register(name string, g Generator) {
	r.providers[name] = g
}

// Generate dispatches to the personality's provider.
func (r *Registry) Generate(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*Result, error) {
	g, ok := r.providers[p.Provider]
	if !ok {
		return nil, types.NewErrorf(types.ErrValidation, "no provider configured for %q", p.Provider)
	}
	return g.Generate(ctx, p, prompt, history)
}

var _ Generator = (*Registry)(nil)
