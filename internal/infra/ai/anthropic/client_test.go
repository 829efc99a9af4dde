package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
	"github.com/bryanwahyu/formpulse/internal/infra/ai"
	"github.com/bryanwahyu/formpulse/internal/infra/ai/prompt"
)

func textResponse(text string) string {
	b, _ := json.Marshal(map[string]any{
		"content":     []map[string]any{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
	})
	return string(b)
}

func newTestClient(srv *httptest.Server, waits *[]time.Duration) *Client {
	return NewClient(Options{
		APIKey:   "sk-test",
		Endpoint: srv.URL,
		Retry: ai.Policy{MaxRetries: 4, Step: 10 * time.Second, Sleep: func(_ context.Context, d time.Duration) error {
			*waits = append(*waits, d)
			return nil
		}},
	}).WithHTTPClient(srv.Client())
}

var pngCapture = domain.Capture{Data: []byte("\x89PNG\r\n\x1a\nfake"), MediaType: "image/png"}

func TestAnalyzeRequestContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		require.Equal(t, DefaultVersion, r.Header.Get("anthropic-version"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req messagesRequest
		require.NoError(t, json.Unmarshal(raw, &req))
		require.Equal(t, DefaultModel, req.Model)
		require.Equal(t, 2048, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		require.Equal(t, "user", req.Messages[0].Role)
		require.Len(t, req.Messages[0].Content, 2)

		img := req.Messages[0].Content[0]
		require.Equal(t, "image", img.Type)
		require.Equal(t, "base64", img.Source.Type)
		require.Equal(t, "image/png", img.Source.MediaType)
		require.Equal(t, base64.StdEncoding.EncodeToString(pngCapture.Data), img.Source.Data)

		require.Equal(t, "text", req.Messages[0].Content[1].Type)
		require.Equal(t, prompt.FormInstruction, req.Messages[0].Content[1].Text)

		fmt.Fprint(w, textResponse(`[{"question":"Capital of France?","answer":"Paris","position":2,"total":4}]`))
	}))
	defer srv.Close()

	var waits []time.Duration
	answers, err := newTestClient(srv, &waits).Analyze(context.Background(), pngCapture)
	require.NoError(t, err)
	require.Equal(t, []domain.Answer{{Question: "Capital of France?", Answer: "Paris", Position: 2, Total: 4}}, answers)
	require.Empty(t, waits)
}

func TestAnalyzeStripsFence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, textResponse("```json\n[{\"question\":\"Name?\",\"answer\":\"Jean\",\"position\":-1,\"total\":0}]\n```"))
	}))
	defer srv.Close()

	var waits []time.Duration
	answers, err := newTestClient(srv, &waits).Analyze(context.Background(), pngCapture)
	require.NoError(t, err)
	require.Equal(t, []domain.Answer{{Question: "Name?", Answer: "Jean", Position: -1, Total: 0}}, answers)
}

func TestAnalyzeRetriesOverload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(ai.StatusOverloaded)
			fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
			return
		}
		fmt.Fprint(w, textResponse(`[]`))
	}))
	defer srv.Close()

	var waits []time.Duration
	answers, err := newTestClient(srv, &waits).Analyze(context.Background(), pngCapture)
	require.NoError(t, err)
	require.Empty(t, answers)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, waits)
}

func TestAnalyzeOverloadExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(ai.StatusOverloaded)
	}))
	defer srv.Close()

	var waits []time.Duration
	_, err := newTestClient(srv, &waits).Analyze(context.Background(), pngCapture)
	require.Error(t, err)
	require.Equal(t, domain.KindOverloadFailure, domain.KindOf(err))
	require.Equal(t, int32(5), calls.Load())
	require.Len(t, waits, 4)
}

func TestAnalyzeTransportFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	var waits []time.Duration
	_, err := newTestClient(srv, &waits).Analyze(context.Background(), pngCapture)
	require.Error(t, err)
	require.Equal(t, domain.KindTransportFailure, domain.KindOf(err))
	require.Contains(t, err.Error(), "HTTP 401")
	require.Contains(t, err.Error(), "invalid x-api-key")
	require.Equal(t, int32(1), calls.Load())
	require.Empty(t, waits)
}

func TestAnalyzeParseFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, textResponse("I could not find a form on this screen."))
	}))
	defer srv.Close()

	var waits []time.Duration
	_, err := newTestClient(srv, &waits).Analyze(context.Background(), pngCapture)
	require.Error(t, err)
	require.Equal(t, domain.KindResponseParseFailure, domain.KindOf(err))
	require.Equal(t, int32(1), calls.Load())
}

func TestAnalyzeEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":[]}`)
	}))
	defer srv.Close()

	var waits []time.Duration
	_, err := newTestClient(srv, &waits).Analyze(context.Background(), pngCapture)
	require.Equal(t, domain.KindResponseParseFailure, domain.KindOf(err))
}

func TestAnalyzeAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "k", Endpoint: srv.URL, Timeout: 50 * time.Millisecond}).WithHTTPClient(srv.Client())
	_, err := c.Analyze(context.Background(), pngCapture)
	require.Error(t, err)
	require.Equal(t, domain.KindTransportFailure, domain.KindOf(err))
}
