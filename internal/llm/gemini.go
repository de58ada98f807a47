package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/fmuoria/resume-parser/internal/config"
)

// GeminiClient calls the Gemini API with an API key
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewGeminiClient creates a Gemini client. With no API key the client is
// still returned, and every call fails with an auth GenerationError.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *logrus.Logger) (*GeminiClient, error) {
	return newGeminiClient(ctx, cfg, genai.HTTPOptions{}, logger)
}

func newGeminiClient(ctx context.Context, cfg config.LLMConfig, httpOpts genai.HTTPOptions, logger *logrus.Logger) (*GeminiClient, error) {
	g := &GeminiClient{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}

	if cfg.APIKey == "" {
		logger.Warn("No API key configured; generation requests will fail")
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client

	return g, nil
}

// GenerateContent sends a prompt to the model and returns the response text
func (g *GeminiClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", g.fail(&GenerationError{Kind: KindAuth, Model: g.model, Err: ErrMissingAPIKey})
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", g.fail(&GenerationError{Kind: classifyGeminiError(err), Model: g.model, Err: err})
	}

	if len(result.Candidates) == 0 {
		return "", g.fail(&GenerationError{Kind: KindAPI, Model: g.model, Err: ErrEmptyResponse})
	}

	text := result.Text()
	g.logger.WithFields(logrus.Fields{
		"model":           g.model,
		"prompt_length":   len(prompt),
		"response_length": len(text),
		"duration":        time.Since(start),
	}).Debug("Generation completed")

	return text, nil
}

func (g *GeminiClient) fail(err *GenerationError) error {
	g.logger.WithError(err.Err).WithFields(logrus.Fields{
		"model": g.model,
		"kind":  err.Kind,
	}).Error("Generation request failed")
	return err
}

// classifyGeminiError maps an SDK error to an ErrorKind
func classifyGeminiError(err error) ErrorKind {
	if transportKind(err) {
		return KindTransport
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return KindTransport
	}

	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	default:
		return KindAPI
	}
}
