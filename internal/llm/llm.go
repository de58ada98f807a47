package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fmuoria/resume-parser/internal/config"
)

// Generator sends a prompt to a hosted model and returns its text unmodified
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// ErrorKind classifies a GenerationError
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindAPI       ErrorKind = "api"
	KindTransport ErrorKind = "transport"
)

// ErrMissingAPIKey is the cause of every call made without credentials
var ErrMissingAPIKey = errors.New("api key is not configured")

// ErrEmptyResponse is returned when the model produced no candidates
var ErrEmptyResponse = errors.New("no response candidates returned")

// GenerationError wraps any failure of a generation call
type GenerationError struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s, model %s): %v", e.Kind, e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// New builds the generator selected by cfg.Provider. The returned close
// function releases the underlying client and is never nil.
func New(ctx context.Context, cfg config.LLMConfig, logger *logrus.Logger) (Generator, func() error, error) {
	switch cfg.Provider {
	case config.ProviderVertex:
		client, err := NewVertexAIClient(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	case config.ProviderGemini, "":
		client, err := NewGeminiClient(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// transportKind reports context expiry and cancellation as transport failures
func transportKind(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
