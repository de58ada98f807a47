package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fmuoria/resume-parser/internal/agent"
	"github.com/fmuoria/resume-parser/internal/config"
	"github.com/fmuoria/resume-parser/internal/events"
	"github.com/fmuoria/resume-parser/internal/ingestion"
	"github.com/fmuoria/resume-parser/internal/llm"
	"github.com/fmuoria/resume-parser/internal/logging"
	"github.com/fmuoria/resume-parser/internal/mirror"
	"github.com/fmuoria/resume-parser/internal/prompt"
)

// app holds everything a command needs, built once from config
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	agent   *agent.ResumeAgent
	closers []func() error
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp wires the pipeline. Without withGenerator the agent can only
// report on existing artifacts.
func newApp(ctx context.Context, withGenerator bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	fileHandler := ingestion.NewFileHandler(cfg.Storage.InputsDir, cfg.Storage.OutputsDir, logger)

	if !withGenerator {
		a.agent = agent.NewResumeAgent(fileHandler, nil, logger)
		return a, nil
	}

	generator, closeGenerator, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	a.closers = append(a.closers, closeGenerator)

	opts := []agent.Option{
		agent.WithPromptBuilder(prompt.Builder{MaxTextLen: cfg.LLM.MaxTextLen}),
		agent.WithBatchLimit(cfg.Gmail.Concurrency),
	}

	if cfg.Mirror.Enabled() {
		store, err := mirror.NewStore(ctx, cfg.Mirror)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.WithField("bucket", store.Bucket()).Info("Mirroring inputs and artifacts to S3")
		opts = append(opts, agent.WithMirror(store))
	}

	if cfg.Events.Enabled() {
		publisher, err := events.NewPublisher(cfg.Events.URL, cfg.Events.Exchange)
		if err != nil {
			// The broker is optional; uploads keep working without it
			logger.WithError(err).Warn("Event publisher unavailable, continuing without events")
		} else {
			logger.WithField("exchange", cfg.Events.Exchange).Info("Publishing processing events")
			a.closers = append(a.closers, publisher.Close)
			opts = append(opts, agent.WithNotifier(publisher))
		}
	}

	a.agent = agent.NewResumeAgent(fileHandler, generator, logger, opts...)
	return a, nil
}

// gmailFactory opens the Gmail client lazily so the server starts without credentials
func (a *app) gmailFactory() func(ctx context.Context) (agent.AttachmentFetcher, error) {
	return func(ctx context.Context) (agent.AttachmentFetcher, error) {
		handler, err := ingestion.NewGmailHandler(ctx, a.cfg.Gmail.CredentialsPath, a.cfg.Gmail.TokenPath, a.cfg.Storage.InputsDir, a.logger)
		if err != nil {
			return nil, err
		}
		return handler, nil
	}
}

// Close releases clients in reverse order of creation
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
