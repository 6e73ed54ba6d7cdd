// Package title names conversations from their first user utterance using a
// chat completion model.
package title

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is the default titling model. Titling is a single short
// completion, so the cheapest capable model is the right default.
const DefaultModel = "gpt-4o-mini"

// maxTitleLen caps the returned title. Models occasionally ignore length
// instructions.
const maxTitleLen = 80

const systemPrompt = "You name conversations. Given the opening message of a voice " +
	"conversation, reply with a short descriptive title of at most six words. " +
	"Reply with the title only: no quotes, no trailing punctuation."

// Generator produces conversation titles via the OpenAI chat completion API.
type Generator struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the generator.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Generator.
type Option func(*config)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a Generator. If model is empty, [DefaultModel] is used.
func New(apiKey, model string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("title: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Generator{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Title returns a short descriptive title for a conversation opening with
// utterance.
func (g *Generator) Title(ctx context.Context, utterance string) (string, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return "", fmt.Errorf("title: empty utterance")
	}

	resp, err := g.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(utterance),
		},
	})
	if err != nil {
		return "", fmt.Errorf("title: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("title: completion returned no choices")
	}

	t := sanitize(resp.Choices[0].Message.Content)
	if t == "" {
		return "", fmt.Errorf("title: completion returned empty title")
	}
	return t, nil
}

// sanitize strips quoting and trailing punctuation the model may add despite
// instructions, and enforces the length cap.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimRight(s, ".!")
	if len(s) > maxTitleLen {
		s = strings.TrimSpace(s[:maxTitleLen])
	}
	return s
}
