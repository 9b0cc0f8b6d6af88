// Package ai talks to the LLM backends that write path explanations.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Provider kinds
// ---------------------------------------------------------------------------

// ProviderKind identifies a supported AI backend.
type ProviderKind string

const (
	ProviderNone    ProviderKind = "none"
	ProviderBedrock ProviderKind = "bedrock"
	ProviderOllama  ProviderKind = "ollama"
)

// ErrDisabled is returned by NewProvider for ProviderNone.
var ErrDisabled = errors.New("ai: provider disabled")

// ---------------------------------------------------------------------------
// Message types
// ---------------------------------------------------------------------------

// Role represents a conversation participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions configures a single completion request.
type GenerateOptions struct {
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	StopWords   []string `json:"stop_words,omitempty"`
}

// DefaultGenerateOptions returns the options used for explanations.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		MaxTokens:   1024,
		Temperature: 0.2,
		TopP:        0.9,
	}
}

// StreamDelta is one chunk of a streaming response.
type StreamDelta struct {
	Content    string `json:"content,omitempty"`
	Done       bool   `json:"done"`
	StopReason string `json:"stop_reason,omitempty"`
	Err        error  `json:"-"`
}

// ---------------------------------------------------------------------------
// Provider interface
// ---------------------------------------------------------------------------

// Provider is the contract every AI backend must satisfy.
type Provider interface {
	// Generate produces a single, complete assistant response.
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Message, error)

	// StreamGenerate produces a streaming response. The channel is closed
	// after a delta with Done set; the caller must drain it.
	StreamGenerate(ctx context.Context, messages []Message, opts GenerateOptions) (<-chan StreamDelta, error)

	// Name returns the backend name, e.g. "bedrock".
	Name() string

	Close() error
}

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// ProviderConfig holds all configuration accepted by NewProvider.
type ProviderConfig struct {
	Kind      ProviderKind `yaml:"kind" json:"kind"`
	Region    string       `yaml:"region" json:"region,omitempty"`
	Model     string       `yaml:"model" json:"model,omitempty"`
	OllamaURL string       `yaml:"ollama_url" json:"ollama_url,omitempty"`
}

// Validate checks that required fields are set.
func (c ProviderConfig) Validate() error {
	switch c.Kind {
	case ProviderNone, "":
		return nil
	case ProviderBedrock:
		if c.Region == "" {
			return fmt.Errorf("ai: bedrock provider requires region")
		}
	case ProviderOllama:
		if c.OllamaURL == "" {
			return fmt.Errorf("ai: ollama provider requires ollama_url")
		}
	default:
		return fmt.Errorf("ai: unknown provider kind %q", c.Kind)
	}
	return nil
}

// NewProvider creates a concrete Provider from configuration.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case ProviderBedrock:
		return newBedrockProvider(ctx, cfg)
	case ProviderOllama:
		return newOllamaProvider(cfg), nil
	}
	return nil, ErrDisabled
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// BuildConversation prepends a system prompt to a sequence of turns.
func BuildConversation(system string, turns ...Message) []Message {
	msgs := make([]Message, 0, 1+len(turns))
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: strings.TrimSpace(system)})
	}
	return append(msgs, turns...)
}

// Collect drains a stream, calling onDelta for each content chunk, and
// returns the full text.
func Collect(ch <-chan StreamDelta, onDelta func(string)) (string, error) {
	var b strings.Builder
	for d := range ch {
		if d.Err != nil {
			// Keep draining so the producer can exit.
			for range ch {
			}
			return b.String(), d.Err
		}
		if d.Content != "" {
			b.WriteString(d.Content)
			if onDelta != nil {
				onDelta(d.Content)
			}
		}
	}
	return b.String(), nil
}

func resolveModel(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
