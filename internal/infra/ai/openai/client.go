package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
	"github.com/bryanwahyu/formpulse/internal/infra/ai"
	"github.com/bryanwahyu/formpulse/internal/infra/ai/prompt"
)

const (
	maxTokens    = 2048
	DefaultModel = "gpt-4o"
)

// Options for the chat completion backend. BaseURL is optional (proxies, tests).
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Retry   ai.Policy
}

type Client struct {
	*openai.Client
	model   string
	timeout time.Duration
	retry   ai.Policy
}

func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.HTTPClient = &http.Client{}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		Client:  openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		timeout: opts.Timeout,
		retry:   opts.Retry,
	}
}

func (c *Client) Name() string  { return "openai" }
func (c *Client) Model() string { return c.model }

// Analyze sends the capture as an image_url data URL part followed by the form instruction.
func (c *Client) Analyze(ctx context.Context, capture domain.Capture) ([]domain.Answer, error) {
	mediaType := capture.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	dataURL := "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(capture.Data)

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailHigh},
				},
				{Type: openai.ChatMessagePartTypeText, Text: prompt.FormInstruction},
			},
		}},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(c.model, "o1") || strings.HasPrefix(c.model, "o3") || strings.HasPrefix(c.model, "o4") || strings.HasPrefix(c.model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	return ai.Do(ctx, c.retry, func(ctx context.Context) ([]domain.Answer, error) {
		text, err := c.complete(ctx, req)
		if err != nil {
			return nil, err
		}
		return prompt.ParseAnswers(text)
	})
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", domain.NewError(domain.KindResponseParseFailure, domain.StageInfer, "chat completion",
			fmt.Errorf("empty completion"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classify(err error) error {
	code := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		code = reqErr.HTTPStatusCode
	}
	kind := domain.KindTransportFailure
	if code != 0 {
		kind = ai.ClassifyStatus(code)
	}
	return &domain.Error{
		Kind:       kind,
		Stage:      domain.StageInfer,
		Op:         "chat completion",
		StatusCode: code,
		Err:        err,
	}
}
