package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// Claude implements Generator for Anthropic. It cannot embed.
type Claude struct {
	client *anthropic.Client
	model  string
}

// NewClaude creates a Claude client. If apiKey is empty, ANTHROPIC_API_KEY is used.
func NewClaude(apiKey, model, baseURL string) *Claude {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if model == "" {
		model = "claude-sonnet-4-6"
	}
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &Claude{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (c *Claude) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	var messages []anthropic.Message
	for _, m := range foldReferences(req.Messages) {
		role := anthropic.RoleUser
		if m.Role == RoleAssistant {
			role = anthropic.RoleAssistant
		}
		messages = append(messages, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Content)},
		})
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("claude complete: no messages")
	}

	temp := float32(req.Temperature)
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		Messages:    messages,
		MaxTokens:   maxTokens(req.MaxTokens),
		System:      systemText(req),
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("claude complete: %w", err)
	}

	var b strings.Builder
	for _, part := range resp.Content {
		if part.Type == anthropic.MessagesContentTypeText {
			b.WriteString(part.GetText())
		}
	}
	return b.String(), nil
}
