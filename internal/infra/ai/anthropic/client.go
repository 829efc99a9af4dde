package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
	"github.com/bryanwahyu/formpulse/internal/infra/ai"
	"github.com/bryanwahyu/formpulse/internal/infra/ai/prompt"
)

const (
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"
	DefaultModel    = "claude-sonnet-4-6"
	DefaultVersion  = "2023-06-01"
	maxTokens       = 2048
)

// Options configures the messages client. Zero values fall back to defaults.
type Options struct {
	APIKey    string
	Endpoint  string
	Model     string
	Version   string
	MaxTokens int
	// Timeout bounds a single attempt, not the whole retry sequence.
	Timeout time.Duration
	Retry   ai.Policy
}

type Client struct {
	opts  Options
	httpc *http.Client
}

func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = maxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          4,
	}
	return &Client{opts: opts, httpc: &http.Client{Transport: tr}}
}

// WithHTTPClient overrides the internal HTTP client (tests, proxies).
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.httpc = h
	}
	return c
}

func (c *Client) Name() string  { return "anthropic" }
func (c *Client) Model() string { return c.opts.Model }

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type contentPart struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Analyze sends the capture with the form instruction and returns the parsed answers in service order.
func (c *Client) Analyze(ctx context.Context, capture domain.Capture) ([]domain.Answer, error) {
	payload, err := c.buildRequest(capture)
	if err != nil {
		return nil, err
	}
	return ai.Do(ctx, c.opts.Retry, func(ctx context.Context) ([]domain.Answer, error) {
		text, err := c.send(ctx, payload)
		if err != nil {
			return nil, err
		}
		return prompt.ParseAnswers(text)
	})
}

func (c *Client) buildRequest(capture domain.Capture) ([]byte, error) {
	mediaType := capture.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	body := messagesRequest{
		Model:     c.opts.Model,
		MaxTokens: c.opts.MaxTokens,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "image", Source: &imageSource{
					Type:      "base64",
					MediaType: mediaType,
					Data:      base64.StdEncoding.EncodeToString(capture.Data),
				}},
				{Type: "text", Text: prompt.FormInstruction},
			},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, domain.StageInfer, "encode request", err)
	}
	return payload, nil
}

// send performs one attempt and returns the text of the first content item.
func (c *Client) send(ctx context.Context, payload []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", domain.NewError(domain.KindTransportFailure, domain.StageInfer, "messages", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.opts.APIKey)
	req.Header.Set("anthropic-version", c.opts.Version)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", domain.NewError(domain.KindTransportFailure, domain.StageInfer, "messages", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", ai.StatusError("messages", resp.StatusCode, raw)
	}
	if err != nil {
		return "", domain.NewError(domain.KindTransportFailure, domain.StageInfer, "read response", err)
	}

	var mr messagesResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		return "", domain.NewError(domain.KindResponseParseFailure, domain.StageInfer, "decode response",
			fmt.Errorf("%w; body=%s", err, ai.Excerpt(raw, 200)))
	}
	if len(mr.Content) == 0 || strings.TrimSpace(mr.Content[0].Text) == "" {
		return "", domain.NewError(domain.KindResponseParseFailure, domain.StageInfer, "decode response",
			fmt.Errorf("empty content; body=%s", ai.Excerpt(raw, 200)))
	}
	return strings.TrimSpace(mr.Content[0].Text), nil
}
