// Package llm provides a unified interface for the generation and embedding
// providers the assistant can talk to.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/kitchencompanion/kitchencompanion/internal/config"
)

// Provider name constants.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// Role of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleReference marks injected reference material. Providers without a
	// native notion of it receive it as a context block.
	RoleReference Role = "reference"
)

// Message is one entry of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Request holds the parameters of a generation call.
type Request struct {
	System      string
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// Generator produces a reply to a conversation.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model names the embedding model, recorded with built indexes.
	Model() string
}

// Options select and configure providers.
type Options struct {
	Provider   string
	Model      string
	Embedder   string
	EmbedModel string
	APIKey     string
	// EmbedAPIKey is the key for the embedding provider when it differs
	// from the generation provider.
	EmbedAPIKey string
	OllamaHost  string
	// BaseURL overrides the provider endpoint.
	BaseURL string
}

// NewGenerator constructs the Generator for opts.Provider.
func NewGenerator(opts Options) (Generator, error) {
	switch opts.Provider {
	case ProviderClaude:
		return NewClaude(opts.APIKey, opts.Model, opts.BaseURL), nil
	case ProviderOpenAI:
		return NewOpenAI(opts.APIKey, opts.Model, "", opts.BaseURL), nil
	case ProviderGemini:
		return NewGemini(opts.APIKey, opts.Model, opts.BaseURL), nil
	case ProviderOllama:
		return NewOllama(ollamaHost(opts), opts.Model, opts.EmbedModel), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q; valid providers: claude, openai, gemini, ollama", opts.Provider)
	}
}

// NewEmbedder constructs the Embedder for opts.Embedder. It returns nil and
// no error for "none" or an empty name.
func NewEmbedder(opts Options) (Embedder, error) {
	switch opts.Embedder {
	case "", ProviderNone:
		return nil, nil
	case ProviderOpenAI:
		key := opts.EmbedAPIKey
		if key == "" {
			key = opts.APIKey
		}
		return NewOpenAI(key, "", opts.EmbedModel, opts.BaseURL), nil
	case ProviderOllama:
		return NewOllama(ollamaHost(opts), opts.Model, opts.EmbedModel), nil
	default:
		return nil, fmt.Errorf("llm: provider %q cannot embed; valid embedders: openai, ollama, none", opts.Embedder)
	}
}

func ollamaHost(opts Options) string {
	if opts.BaseURL != "" {
		return opts.BaseURL
	}
	if opts.OllamaHost != "" {
		return opts.OllamaHost
	}
	return "http://localhost:11434"
}

// contextBlock wraps reference material the way every provider receives it.
func contextBlock(s string) string {
	return fmt.Sprintf("<context>\n%s\n</context>", s)
}

// foldReferences rewrites reference messages for providers that only accept
// alternating user and assistant turns: each reference is attached to the
// closest preceding user message, or becomes a user message of its own.
func foldReferences(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleReference:
			if n := len(out); n > 0 && out[n-1].Role == RoleUser {
				out[n-1].Content = out[n-1].Content + "\n\n" + contextBlock(m.Content)
				continue
			}
			out = append(out, Message{Role: RoleUser, Content: contextBlock(m.Content)})
		case RoleSystem:
			// Callers pass system text through Request.System.
			continue
		default:
			out = append(out, m)
		}
	}
	return out
}

// systemText joins Request.System with any system-role messages.
func systemText(req Request) string {
	parts := []string{}
	if req.System != "" {
		parts = append(parts, req.System)
	}
	for _, m := range req.Messages {
		if m.Role == RoleSystem && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

func maxTokens(n int) int {
	if n <= 0 {
		return 1024
	}
	return n
}

// OptionsFromConfig maps the [llm], [keys] and [ollama] sections to Options.
func OptionsFromConfig(cfg config.Config) Options {
	opts := Options{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Embedder:    cfg.LLM.Embedder,
		EmbedModel:  cfg.LLM.EmbedModel,
		APIKey:      cfg.APIKey(cfg.LLM.Provider),
		EmbedAPIKey: cfg.APIKey(cfg.LLM.Embedder),
		OllamaHost:  cfg.Ollama.Host,
	}
	if opts.Provider == ProviderOllama && (opts.Model == "" || opts.Model == config.Default().LLM.Model) {
		opts.Model = cfg.Ollama.CompletionModel
	}
	if opts.Embedder == ProviderOllama && opts.EmbedModel == "" {
		opts.EmbedModel = cfg.Ollama.EmbedModel
	}
	return opts
}
