package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/fmuoria/resume-parser/internal/config"
	"github.com/fmuoria/resume-parser/internal/logging"
)

func testLLMConfig() config.LLMConfig {
	cfg := config.DefaultConfig().LLM
	cfg.APIKey = "test-key"
	return cfg
}

func newTestGemini(t *testing.T, handler http.HandlerFunc, cfg config.LLMConfig) *GeminiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g, err := newGeminiClient(context.Background(), cfg, genai.HTTPOptions{BaseURL: server.URL + "/"}, logging.Discard())
	require.NoError(t, err)
	return g
}

func TestGeminiClient_ReturnsTextUnmodified(t *testing.T) {
	const modelText = "```json\n{\"Name\": \"Jane Doe\"}\n```"
	var gotPrompt atomic.Value

	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.5-flash:generateContent"), r.URL.Path)

		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Contents) > 0 && len(body.Contents[0].Parts) > 0 {
			gotPrompt.Store(body.Contents[0].Parts[0].Text)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":%q}]}}]}`, modelText)
	}, testLLMConfig())

	text, err := g.GenerateContent(context.Background(), "extract this")
	require.NoError(t, err)
	assert.Equal(t, modelText, text)
	assert.Equal(t, "extract this", gotPrompt.Load())
}

func TestGeminiClient_APIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   ErrorKind
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, kind: KindAuth},
		{name: "forbidden", status: http.StatusForbidden, kind: KindAuth},
		{name: "bad request", status: http.StatusBadRequest, kind: KindAPI},
		{name: "not found", status: http.StatusNotFound, kind: KindAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"code":%d,"message":"boom","status":"ERROR"}}`, tt.status)
			}, testLLMConfig())

			_, err := g.GenerateContent(context.Background(), "prompt")

			var genErr *GenerationError
			require.True(t, errors.As(err, &genErr), "expected GenerationError, got %v", err)
			assert.Equal(t, tt.kind, genErr.Kind)
			assert.Equal(t, "gemini-2.5-flash", genErr.Model)
			// No retry
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestGeminiClient_EmptyCandidates(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[]}`))
	}, testLLMConfig())

	_, err := g.GenerateContent(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	cfg := testLLMConfig()
	cfg.Timeout = 50 * time.Millisecond

	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, cfg)
	defer close(release)

	_, err := g.GenerateContent(context.Background(), "prompt")

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr), "expected GenerationError, got %v", err)
	assert.Equal(t, KindTransport, genErr.Kind)
}

func TestGeminiClient_MissingKey(t *testing.T) {
	cfg := testLLMConfig()
	cfg.APIKey = ""

	g, err := NewGeminiClient(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)

	_, err = g.GenerateContent(context.Background(), "prompt")

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, KindAuth, genErr.Kind)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testLLMConfig()
	cfg.Provider = "openai"

	_, _, err := New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestClassifyGeminiError(t *testing.T) {
	assert.Equal(t, KindTransport, classifyGeminiError(context.DeadlineExceeded))
	assert.Equal(t, KindTransport, classifyGeminiError(errors.New("dial tcp: connection refused")))
	assert.Equal(t, KindAuth, classifyGeminiError(fmt.Errorf("wrapped: %w", genai.APIError{Code: 403})))
	assert.Equal(t, KindAPI, classifyGeminiError(genai.APIError{Code: 429}))
}
