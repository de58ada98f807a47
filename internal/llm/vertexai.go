package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fmuoria/resume-parser/internal/config"
)

// VertexAIClient wraps the Vertex AI Gemini API
type VertexAIClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	timeout   time.Duration
	logger    *logrus.Logger
}

// NewVertexAIClient creates a new Vertex AI client using application
// default credentials for the configured project
func NewVertexAIClient(ctx context.Context, cfg config.LLMConfig, logger *logrus.Logger) (*VertexAIClient, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("google cloud project is required for Vertex AI")
	}

	location := cfg.Location
	if location == "" {
		location = "us-central1"
	}

	client, err := genai.NewClient(ctx, cfg.Project, location)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	return &VertexAIClient{
		client:    client,
		model:     client.GenerativeModel(cfg.Model),
		modelName: cfg.Model,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// GenerateContent sends a prompt to the model and returns the response
func (v *VertexAIClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", v.fail(&GenerationError{Kind: classifyVertexError(err), Model: v.modelName, Err: err})
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", v.fail(&GenerationError{Kind: KindAPI, Model: v.modelName, Err: ErrEmptyResponse})
	}

	return candidateText(resp.Candidates[0]), nil
}

// candidateText concatenates the text parts of a candidate
func candidateText(c *genai.Candidate) string {
	var sb strings.Builder
	for _, part := range c.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

func (v *VertexAIClient) fail(err *GenerationError) error {
	v.logger.WithError(err.Err).WithFields(logrus.Fields{
		"model": v.modelName,
		"kind":  err.Kind,
	}).Error("Generation request failed")
	return err
}

// Close closes the Vertex AI client
func (v *VertexAIClient) Close() error {
	return v.client.Close()
}

// classifyVertexError maps a gRPC status to an ErrorKind
func classifyVertexError(err error) ErrorKind {
	if transportKind(err) {
		return KindTransport
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return KindAPI
	}

	st, ok := status.FromError(err)
	if !ok {
		return KindTransport
	}

	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return KindAuth
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return KindTransport
	default:
		return KindAPI
	}
}
