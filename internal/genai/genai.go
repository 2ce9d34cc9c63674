// Package genai provides the chat-completion client for chatrelay.
//
// It adapts the OpenAI-compatible completion endpoint (OpenRouter by
// default). Credentials and model name come from the settings record on
// every call, so no API key is held by the client itself.
package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mosaaedak/chatrelay/internal/models"
)

// DefaultBaseURL is the OpenRouter chat-completion endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1/"

// Opts holds configuration options for the completion client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Option defines a configuration option for the completion client.
type Option func(*Opts)

// WithBaseURL overrides the completion endpoint base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient overrides the HTTP client used for completion calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// CompletionRequest carries everything one completion call needs. The
// relay fills it from the settings record and the trimmed history.
type CompletionRequest struct {
	APIKey       string
	Model        string
	SystemPrompt string
	History      []models.Message
}

// RemoteError is a non-success response from the completion endpoint. The
// caller substitutes a fixed apology and must not persist an assistant
// turn for it.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("completion endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Client calls the remote completion endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a completion client.
func NewClient(opts ...Option) *Client {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{baseURL: cfg.BaseURL, httpClient: cfg.HTTPClient}
}

// Complete issues one synchronous chat-completion call: system prompt
// first, then the history in chronological order. No retries; a non-2xx
// response comes back as *RemoteError. A success with no extractable
// content returns ("", nil) and the caller substitutes its fallback text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(req.APIKey),
		option.WithBaseURL(c.baseURL),
		option.WithMaxRetries(0),
	}
	if c.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(c.httpClient))
	}
	cli := openai.NewClient(reqOpts...)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	for _, m := range req.History {
		switch m.Role {
		case models.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := cli.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return "", &RemoteError{StatusCode: apierr.StatusCode, Body: apierr.RawJSON()}
		}
		return "", fmt.Errorf("completion call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
