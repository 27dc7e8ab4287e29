package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Ollama implements Generator and Embedder for a local Ollama instance.
type Ollama struct {
	host       string
	model      string
	embedModel string
	client     *http.Client
}

// NewOllama creates an Ollama client.
func NewOllama(host, model, embedModel string) *Ollama {
	if model == "" {
		model = "llama3.2"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	return &Ollama{
		host:       strings.TrimRight(host, "/"),
		model:      model,
		embedModel: embedModel,
		client:     &http.Client{},
	}
}

// Model returns the embedding model name.
func (o *Ollama) Model() string { return o.embedModel }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result ollamaEmbedResponse
	if err := o.post(ctx, "/api/embed", ollamaEmbedRequest{Model: o.embedModel, Input: texts}, &result); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

func (o *Ollama) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	messages := []ollamaChatMessage{}
	if sys := systemText(req); sys != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: sys})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			continue
		case RoleReference:
			messages = append(messages, ollamaChatMessage{Role: "system", Content: contextBlock(m.Content)})
		default:
			messages = append(messages, ollamaChatMessage{Role: string(m.Role), Content: m.Content})
		}
	}

	var resp ollamaChatResponse
	err := o.post(ctx, "/api/chat", ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": maxTokens(req.MaxTokens),
		},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("ollama complete: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama complete: %s", resp.Error)
	}
	return resp.Message.Content, nil
}

func (o *Ollama) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
