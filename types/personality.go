package types

// SenderUser is the reserved sender id for human messages. It is never a
// valid personality id and never part of a conversation's rotation.
const SenderUser = "user"

// Personality is a named AI configuration that can occupy a turn.
// Immutable for the duration of a conversation; created and edited only
// through management operations outside the orchestration core.
type Personality struct {
	// NameID is the unique, stable identity. Rotation order is alphabetical
	// on this field.
	NameID string `json:"name_id" yaml:"name_id"`

	// DisplayName is the human-facing label.
	DisplayName string `json:"display_name" yaml:"display_name"`

	// SystemPrompt holds the base behavioral instructions.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`

	// Provider references the generation provider configuration to use.
	Provider string `json:"provider" yaml:"provider"`

	// Model is the provider-specific model name.
	Model string `json:"model" yaml:"model"`

	// Temperature controls generation randomness.
	Temperature float32 `json:"temperature" yaml:"temperature"`

	// MaxTokens bounds a single generation.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
}

// Valid reports whether the personality carries the minimum required fields.
func (p Personality) Valid() bool {
	return p.NameID != "" && p.NameID != SenderUser
}
