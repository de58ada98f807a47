package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fmuoria/resume-parser/internal/ingestion"
	"github.com/fmuoria/resume-parser/internal/llm"
	"github.com/fmuoria/resume-parser/internal/mirror"
	"github.com/fmuoria/resume-parser/internal/models"
	"github.com/fmuoria/resume-parser/internal/prompt"
	"github.com/fmuoria/resume-parser/internal/scoring"
)

// DefaultBatchLimit bounds concurrent pipeline runs during batch ingestion
const DefaultBatchLimit = 4

// ProgressCallback is called to report progress during batch processing
type ProgressCallback func(current, total int, message string)

// Mirror copies local files to remote storage
type Mirror interface {
	MirrorFile(ctx context.Context, prefix, localPath string) (string, error)
}

// Notifier publishes processing events
type Notifier interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AttachmentFetcher downloads attachments into the inputs directory and
// returns their stored names
type AttachmentFetcher interface {
	FetchAttachments(ctx context.Context, subject string) ([]string, error)
}

// extractFunc turns a stored input into text
type extractFunc func(path string) (*ingestion.Document, error)

// ResumeAgent runs uploads through extract, prompt, generate and save.
// It holds no per-request state.
type ResumeAgent struct {
	FileHandler *ingestion.FileHandler
	generator   llm.Generator
	prompts     prompt.Builder
	scorer      *scoring.Scorer
	mirror      Mirror
	notifier    Notifier
	batchLimit  int
	logger      *logrus.Logger
	mu          sync.RWMutex
	progressCb  ProgressCallback
}

// Option configures a ResumeAgent
type Option func(*ResumeAgent)

// WithMirror copies inputs and artifacts after each successful run
func WithMirror(m Mirror) Option {
	return func(a *ResumeAgent) { a.mirror = m }
}

// WithNotifier publishes an event after each run
func WithNotifier(n Notifier) Option {
	return func(a *ResumeAgent) { a.notifier = n }
}

// WithPromptBuilder replaces the default unlimited prompt builder
func WithPromptBuilder(b prompt.Builder) Option {
	return func(a *ResumeAgent) { a.prompts = b }
}

// WithBatchLimit sets the concurrency of batch ingestion
func WithBatchLimit(n int) Option {
	return func(a *ResumeAgent) {
		if n > 0 {
			a.batchLimit = n
		}
	}
}

// NewResumeAgent creates a new resume agent
func NewResumeAgent(fileHandler *ingestion.FileHandler, generator llm.Generator, logger *logrus.Logger, opts ...Option) *ResumeAgent {
	a := &ResumeAgent{
		FileHandler: fileHandler,
		generator:   generator,
		scorer:      scoring.NewScorer(prompt.Fields),
		batchLimit:  DefaultBatchLimit,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetProgressCallback sets the progress callback function
func (a *ResumeAgent) SetProgressCallback(cb ProgressCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progressCb = cb
}

func (a *ResumeAgent) reportProgress(current, total int, message string) {
	a.mu.RLock()
	cb := a.progressCb
	a.mu.RUnlock()

	if cb != nil {
		cb(current, total, message)
	}
}

// ProcessUpload stores an uploaded PDF and runs it through the pipeline.
// clientName may be empty, in which case a unique name is generated.
func (a *ResumeAgent) ProcessUpload(ctx context.Context, clientName string, content io.Reader) (*models.ParseResult, error) {
	name := ingestion.StorageName(clientName)

	inputPath, err := a.FileHandler.SaveUpload(name, content)
	if err != nil {
		a.notifyFailure(ctx, name, err)
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}

	return a.run(ctx, name, inputPath, ingestion.ExtractPDFFile)
}

// ProcessLocalFile copies a file from disk into the inputs directory and
// runs it through the pipeline, choosing the extractor by extension
func (a *ResumeAgent) ProcessLocalFile(ctx context.Context, path string) (*models.ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	name := ingestion.StorageName(filepath.Base(path))
	inputPath, err := a.FileHandler.SaveUpload(name, f)
	if err != nil {
		a.notifyFailure(ctx, name, err)
		return nil, fmt.Errorf("failed to save input: %w", err)
	}

	return a.run(ctx, name, inputPath, ingestion.ExtractText)
}

// ProcessStored runs a file already present in the inputs directory
func (a *ResumeAgent) ProcessStored(ctx context.Context, name string) (*models.ParseResult, error) {
	return a.run(ctx, name, filepath.Join(a.FileHandler.InputsDir(), name), ingestion.ExtractText)
}

// run is the linear pipeline. The artifact is written only after
// generation succeeds.
func (a *ResumeAgent) run(ctx context.Context, name, inputPath string, extract extractFunc) (*models.ParseResult, error) {
	start := time.Now()
	log := a.logger.WithField("file_name", name)

	doc, err := extract(inputPath)
	if err != nil {
		log.WithError(err).Warn("Text extraction failed")
		a.notifyFailure(ctx, name, err)
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"pages":       doc.PageCount,
		"text_length": len(doc.Text),
	}).Debug("Extracted text")

	response, err := a.generator.GenerateContent(ctx, a.prompts.Build(doc.Text))
	if err != nil {
		a.notifyFailure(ctx, name, err)
		return nil, err
	}

	outputPath, err := a.FileHandler.SaveResult(name, response)
	if err != nil {
		a.notifyFailure(ctx, name, err)
		return nil, fmt.Errorf("failed to save result: %w", err)
	}

	result := &models.ParseResult{
		FileName:   name,
		InputPath:  inputPath,
		OutputPath: outputPath,
		Response:   response,
		PageCount:  doc.PageCount,
		TextLength: len(doc.Text),
		Duration:   time.Since(start),
	}

	log.WithFields(logrus.Fields{
		"output_file": filepath.Base(outputPath),
		"duration":    result.Duration,
	}).Info("Resume processed")

	a.afterSuccess(ctx, result)
	return result, nil
}

// afterSuccess mirrors files and publishes the processed event. Failures
// here are logged and never fail the run.
func (a *ResumeAgent) afterSuccess(ctx context.Context, result *models.ParseResult) {
	ctx = context.WithoutCancel(ctx)

	if a.mirror != nil {
		for _, item := range []struct{ prefix, path string }{
			{mirror.InputsPrefix, result.InputPath},
			{mirror.OutputsPrefix, result.OutputPath},
		} {
			if _, err := a.mirror.MirrorFile(ctx, item.prefix, item.path); err != nil {
				a.logger.WithError(err).WithField("path", item.path).Warn("Mirror upload failed")
			}
		}
	}

	a.publish(ctx, models.ProcessingEvent{
		Type:       models.EventProcessed,
		FileName:   result.FileName,
		OutputFile: filepath.Base(result.OutputPath),
		Timestamp:  time.Now().UTC(),
	})
}

func (a *ResumeAgent) notifyFailure(ctx context.Context, name string, cause error) {
	a.publish(context.WithoutCancel(ctx), models.ProcessingEvent{
		Type:      models.EventFailed,
		FileName:  name,
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	})
}

func (a *ResumeAgent) publish(ctx context.Context, event models.ProcessingEvent) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Publish(ctx, event.Type, event); err != nil {
		a.logger.WithError(err).WithField("event", event.Type).Warn("Event publish failed")
	}
}

// IngestFromGmail fetches attachments matching subject and processes each
// one. A failing file is reported in the batch and does not stop the others.
func (a *ResumeAgent) IngestFromGmail(ctx context.Context, fetcher AttachmentFetcher, subject string) (*models.BatchResponse, error) {
	a.reportProgress(0, 100, "Fetching emails from Gmail...")

	names, err := fetcher.FetchAttachments(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Gmail attachments: %w", err)
	}

	return a.processBatch(ctx, names)
}

// processBatch runs ProcessStored for every name with bounded concurrency.
// Items keep the order of names.
func (a *ResumeAgent) processBatch(ctx context.Context, names []string) (*models.BatchResponse, error) {
	items := make([]models.BatchItem, len(names))
	var done int
	var doneMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.batchLimit)

	for i, name := range names {
		g.Go(func() error {
			item := models.BatchItem{FileName: name}
			result, err := a.ProcessStored(gctx, name)
			if err != nil {
				item.Error = err.Error()
			} else {
				item.LLMResponse = result.Response
			}
			items[i] = item

			doneMu.Lock()
			done++
			current := done
			doneMu.Unlock()
			a.reportProgress(current, len(names), fmt.Sprintf("Processed %s (%d/%d)", name, current, len(names)))

			// Only cancellation of the parent aborts the batch
			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := &models.BatchResponse{Items: items}
	for _, item := range items {
		if item.Error != "" {
			resp.Failed++
		} else {
			resp.Processed++
		}
	}
	return resp, nil
}

// GetReport returns a summary of every saved artifact, including how many
// of the requested fields each one contains
func (a *ResumeAgent) GetReport() (models.ReportResponse, error) {
	artifacts, err := a.FileHandler.ListResults()
	if err != nil {
		return models.ReportResponse{}, err
	}

	for i := range artifacts {
		cov, err := a.scorer.ScoreResponse(artifacts[i].Content)
		if err != nil {
			continue
		}
		artifacts[i].FieldsFound = len(cov.Found)
		artifacts[i].Coverage = cov.Score
	}

	return models.ReportResponse{
		Artifacts:   artifacts,
		Total:       len(artifacts),
		GeneratedAt: time.Now(),
	}, nil
}

// supportedInput reports whether name has an extension ExtractText handles
func supportedInput(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".docx", ".txt":
		return true
	}
	return false
}

// ProcessInputs runs every supported file in the inputs directory that has
// no artifact yet
func (a *ResumeAgent) ProcessInputs(ctx context.Context) (*models.BatchResponse, error) {
	entries, err := os.ReadDir(a.FileHandler.InputsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return &models.BatchResponse{Items: []models.BatchItem{}}, nil
		}
		return nil, fmt.Errorf("failed to read inputs directory: %w", err)
	}

	var pending []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !supportedInput(name) {
			continue
		}
		out := filepath.Join(a.FileHandler.OutputsDir(), ingestion.OutputName(name))
		if _, err := os.Stat(out); err == nil {
			continue
		}
		pending = append(pending, name)
	}

	return a.processBatch(ctx, pending)
}
