package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"integration_server/pkg/apperr"
	"integration_server/pkg/metrics"

	openai "github.com/sashabaranov/go-openai"
)

// ChatModel is the transport to a chat-completion provider. *openai.Client
// satisfies it.
type ChatModel interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const (
	DefaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second

	// DefaultTemperature tells Complete to use the configured temperature.
	DefaultTemperature float32 = -1
)

// NewOpenAIModel returns nil when apiKey is empty so the Client reports
// ProviderUnavailable instead of calling out with no credential.
func NewOpenAIModel(apiKey, baseURL string, httpClient *http.Client) ChatModel {
	if apiKey == "" {
		return nil
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

type ClientConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client generates free text and structured JSON through a ChatModel.
type Client struct {
	model       ChatModel
	name        string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

func NewClient(model ChatModel, cfg ClientConfig) *Client {
	name := cfg.Model
	if name == "" {
		name = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		model:       model,
		name:        name,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
		timeout:     timeout,
	}
}

// Available reports whether a credential was configured.
func (c *Client) Available() bool {
	return c.model != nil
}

// Complete runs one system+user exchange and returns the model's text.
// maxTokens <= 0 and DefaultTemperature fall back to the configured values.
func (c *Client) Complete(ctx context.Context, systemRole, instruction string, maxTokens int, temperature float32) (string, error) {
	text, err := c.complete(ctx, systemRole, instruction, maxTokens, temperature)
	metrics.ObserveGeneration("text", err)
	return text, err
}

// SchemaHint describes the JSON the caller expects: one object with a
// single array field, shown by example.
type SchemaHint struct {
	Field   string
	Example string
}

const structuredSystemRole = "You are a precise assistant that answers only with valid JSON. Never add commentary outside the JSON object."

// GenerateStructured asks for a single JSON object and returns the raw
// text unparsed. The format is requested in the prompt only.
func (c *Client) GenerateStructured(ctx context.Context, instruction string, hint SchemaHint) (string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(instruction))
	b.WriteString("\n\nRespond with a single JSON object containing exactly one field named \"")
	b.WriteString(hint.Field)
	b.WriteString("\" whose value is an array of records.")
	if hint.Example != "" {
		b.WriteString(" Follow this example format:\n")
		b.WriteString(hint.Example)
	}

	text, err := c.complete(ctx, structuredSystemRole, b.String(), 0, DefaultTemperature)
	metrics.ObserveGeneration("structured", err)
	return text, err
}

func (c *Client) complete(ctx context.Context, systemRole, instruction string, maxTokens int, temperature float32) (string, error) {
	if c.model == nil {
		return "", apperr.ProviderUnavailable("")
	}
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if temperature < 0 {
		temperature = c.temperature
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.model.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.name,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemRole},
			{Role: openai.ChatMessageRoleUser, Content: instruction},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperr.Timeout("text generation").WithError(err)
		}
		return "", apperr.GenerationFailed(err)
	}

	if len(resp.Choices) == 0 {
		return "", apperr.GenerationFailed(errors.New("no choices in completion"))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", apperr.GenerationFailed(errors.New("empty completion"))
	}
	return text, nil
}
