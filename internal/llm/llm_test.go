package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kitchencompanion/kitchencompanion/internal/config"
)

func TestNewGenerator_ValidProviders(t *testing.T) {
	for _, p := range []string{ProviderClaude, ProviderOpenAI, ProviderGemini, ProviderOllama} {
		t.Run(p, func(t *testing.T) {
			g, err := NewGenerator(Options{Provider: p, APIKey: "test-key"})
			if err != nil {
				t.Fatalf("NewGenerator(%q) error: %v", p, err)
			}
			if g == nil {
				t.Fatalf("NewGenerator(%q) returned nil", p)
			}
		})
	}
}

func TestNewGenerator_InvalidProvider(t *testing.T) {
	if _, err := NewGenerator(Options{Provider: "invalid"}); err == nil {
		t.Error("expected error for invalid provider")
	}
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(Options{Embedder: ProviderNone})
	if err != nil || e != nil {
		t.Errorf("none: got %v, %v", e, err)
	}
	e, err = NewEmbedder(Options{})
	if err != nil || e != nil {
		t.Errorf("empty: got %v, %v", e, err)
	}

	e, err = NewEmbedder(Options{Embedder: ProviderOllama})
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if e.Model() != "nomic-embed-text" {
		t.Errorf("ollama default embed model: got %q", e.Model())
	}

	e, err = NewEmbedder(Options{Embedder: ProviderOpenAI, APIKey: "k"})
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if e.Model() != "text-embedding-3-small" {
		t.Errorf("openai default embed model: got %q", e.Model())
	}

	if _, err := NewEmbedder(Options{Embedder: ProviderClaude}); err == nil {
		t.Error("expected error: claude cannot embed")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Keys.OpenAI = "sk-openai"
	cfg.LLM.Provider = ProviderOllama
	cfg.LLM.Embedder = ProviderOllama

	opts := OptionsFromConfig(cfg)
	if opts.Model != "llama3.2" {
		t.Errorf("model: got %q, want ollama completion model", opts.Model)
	}
	if opts.EmbedModel != "nomic-embed-text" {
		t.Errorf("embed model: got %q", opts.EmbedModel)
	}
	if opts.OllamaHost != "http://localhost:11434" {
		t.Errorf("host: got %q", opts.OllamaHost)
	}

	cfg = config.Default()
	cfg.Keys.OpenAI = "sk-openai"
	opts = OptionsFromConfig(cfg)
	if opts.APIKey != "sk-openai" || opts.EmbedAPIKey != "sk-openai" {
		t.Errorf("keys: got %q / %q", opts.APIKey, opts.EmbedAPIKey)
	}
}

func TestFoldReferences(t *testing.T) {
	in := []Message{
		{Role: RoleSystem, Content: "ignored here"},
		{Role: RoleUser, Content: "How do I salt pasta water?"},
		{Role: RoleReference, Content: "Salt generously."},
		{Role: RoleAssistant, Content: "Like the sea."},
		{Role: RoleReference, Content: "orphan"},
	}
	out := foldReferences(in)
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(out), out)
	}
	if !strings.Contains(out[0].Content, "<context>\nSalt generously.\n</context>") {
		t.Errorf("reference not folded into user message: %q", out[0].Content)
	}
	if out[2].Role != RoleUser || !strings.Contains(out[2].Content, "orphan") {
		t.Errorf("orphan reference: got %+v", out[2])
	}
	if in[1].Content != "How do I salt pasta water?" {
		t.Error("foldReferences must not modify its input")
	}
}

func TestSystemText(t *testing.T) {
	got := systemText(Request{
		System:   "base",
		Messages: []Message{{Role: RoleSystem, Content: "extra"}, {Role: RoleUser, Content: "hi"}},
	})
	if got != "base\n\nextra" {
		t.Errorf("got %q", got)
	}
}

func TestOpenAI_GenerateAndEmbed(t *testing.T) {
	var chatBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			data, _ := io.ReadAll(r.Body)
			json.Unmarshal(data, &chatBody)
			fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Use kosher salt."},"finish_reason":"stop"}]}`)
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			fmt.Fprint(w, `{"object":"list","data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],"model":"text-embedding-3-small"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	o := NewOpenAI("test-key", "", "", server.URL)

	text, err := o.Generate(context.Background(), Request{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Content: "which salt?"}, {Role: RoleReference, Content: "notes"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Use kosher salt." {
		t.Errorf("got %q", text)
	}
	msgs, _ := chatBody["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("sent %d messages, want 3", len(msgs))
	}
	if chatBody["model"] != "gpt-4o-mini" {
		t.Errorf("model: got %v", chatBody["model"])
	}

	vecs, err := o.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("embeddings not ordered by index: %v", vecs)
	}
}

func TestOpenAI_EmbedEmpty(t *testing.T) {
	o := NewOpenAI("k", "", "", "http://127.0.0.1:0")
	vecs, err := o.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("got %v, %v", vecs, err)
	}
}

func TestClaude_Generate(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-6","content":[{"type":"text","text":"Roast at 220C."}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer server.Close()

	c := NewClaude("test-key", "", server.URL)
	text, err := c.Generate(context.Background(), Request{
		System:   "chef",
		Messages: []Message{{Role: RoleUser, Content: "roast temp?"}, {Role: RoleReference, Content: "hot oven"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Roast at 220C." {
		t.Errorf("got %q", text)
	}
	if body["system"] != "chef" {
		t.Errorf("system: got %v", body["system"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 1 {
		t.Errorf("reference should fold into the user turn, got %d messages", len(msgs))
	}
}

func TestClaude_NoMessages(t *testing.T) {
	c := NewClaude("k", "", "http://127.0.0.1:0")
	if _, err := c.Generate(context.Background(), Request{System: "x"}); err == nil {
		t.Error("expected error with no messages")
	}
}

func TestOllama_GenerateAndEmbed(t *testing.T) {
	var chat ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/chat":
			json.NewDecoder(r.Body).Decode(&chat)
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"Stir often."},"done":true}`)
		case "/api/embed":
			fmt.Fprint(w, `{"embeddings":[[0.5,0.5]]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	o := NewOllama(server.URL+"/", "", "")
	text, err := o.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "risotto?"}, {Role: RoleReference, Content: "stir"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Stir often." {
		t.Errorf("got %q", text)
	}
	if chat.Stream {
		t.Error("expected non-streaming request")
	}
	if len(chat.Messages) != 2 || chat.Messages[1].Role != "system" {
		t.Errorf("messages: %+v", chat.Messages)
	}

	vecs, err := o.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 2 {
		t.Errorf("got %v", vecs)
	}
}

func TestOllama_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	o := NewOllama(server.URL, "", "")
	if _, err := o.Embed(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error for 500")
	}
}

func TestGemini_Generate(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates": [{
				"content": {
					"parts": [{"text": "Hello "}, {"text": "from Gemini!"}],
					"role": "model"
				}
			}]
		}`)
	}))
	defer server.Close()

	g := NewGemini("test-key", "", server.URL)
	text, err := g.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "Hello"}}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Hello from Gemini!" {
		t.Errorf("got %q, want %q", text, "Hello from Gemini!")
	}
	if gotPath != "/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path: got %q", gotPath)
	}
}

func TestGemini_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"API key invalid"}}`)
	}))
	defer server.Close()

	g := NewGemini("bad-key", "", server.URL)
	_, err := g.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "Hello"}}})
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error should mention status code 403: %v", err)
	}
}
