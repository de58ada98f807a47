package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/resume-parser/internal/ingestion"
	"github.com/fmuoria/resume-parser/internal/llm"
	"github.com/fmuoria/resume-parser/internal/logging"
	"github.com/fmuoria/resume-parser/internal/models"
	"github.com/fmuoria/resume-parser/internal/prompt"
	"github.com/fmuoria/resume-parser/internal/testutil"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateContent(ctx context.Context, p string) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

type mockMirror struct {
	mock.Mock
}

func (m *mockMirror) MirrorFile(ctx context.Context, prefix, localPath string) (string, error) {
	args := m.Called(prefix, filepath.Base(localPath))
	return args.String(0), args.Error(1)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.ProcessingEvent
}

func (n *recordingNotifier) Publish(ctx context.Context, routingKey string, event any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event.(models.ProcessingEvent))
	return nil
}

// funcGenerator adapts a function to llm.Generator
type funcGenerator func(ctx context.Context, p string) (string, error)

func (f funcGenerator) GenerateContent(ctx context.Context, p string) (string, error) {
	return f(ctx, p)
}

type stubFetcher struct {
	names []string
	err   error
}

func (s stubFetcher) FetchAttachments(ctx context.Context, subject string) ([]string, error) {
	return s.names, s.err
}

func newTestAgent(t *testing.T, gen llm.Generator, opts ...Option) *ResumeAgent {
	t.Helper()
	root := t.TempDir()
	fh := ingestion.NewFileHandler(filepath.Join(root, "inputs"), filepath.Join(root, "output"), logging.Discard())
	return NewResumeAgent(fh, gen, logging.Discard(), opts...)
}

func outputFiles(t *testing.T, a *ResumeAgent) []string {
	t.Helper()
	entries, err := os.ReadDir(a.FileHandler.OutputsDir())
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestProcessUpload_WritesResponseVerbatim(t *testing.T) {
	const response = "```json\n{\"Name\": \"Jane Doe\"}\n```"

	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Jane Doe Resume") && strings.Contains(p, "Contact Information")
	})).Return(response, nil).Once()

	notifier := &recordingNotifier{}
	a := newTestAgent(t, gen, WithNotifier(notifier))

	result, err := a.ProcessUpload(context.Background(), "jane.pdf", bytes.NewReader(testutil.BuildPDF("Jane Doe Resume")))
	require.NoError(t, err)

	assert.Equal(t, "jane.pdf", result.FileName)
	assert.Equal(t, response, result.Response)
	assert.Equal(t, 1, result.PageCount)
	assert.Equal(t, filepath.Join(a.FileHandler.OutputsDir(), "jane.json"), result.OutputPath)

	data, err := os.ReadFile(result.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, response, string(data))

	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.EventProcessed, notifier.events[0].Type)
	assert.Equal(t, "jane.json", notifier.events[0].OutputFile)

	gen.AssertExpectations(t)
}

func TestProcessUpload_GenerationFailureWritesNothing(t *testing.T) {
	genErr := &llm.GenerationError{Kind: llm.KindAPI, Model: "m", Err: errors.New("quota")}
	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, mock.Anything).Return("", genErr).Once()

	notifier := &recordingNotifier{}
	a := newTestAgent(t, gen, WithNotifier(notifier))

	_, err := a.ProcessUpload(context.Background(), "jane.pdf", bytes.NewReader(testutil.BuildPDF("text")))

	var target *llm.GenerationError
	require.True(t, errors.As(err, &target))
	assert.Empty(t, outputFiles(t, a))

	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.EventFailed, notifier.events[0].Type)
	assert.Contains(t, notifier.events[0].Error, "quota")

	// Only one attempt
	gen.AssertNumberOfCalls(t, "GenerateContent", 1)
}

func TestProcessUpload_InvalidPDF(t *testing.T) {
	gen := &mockGenerator{}
	a := newTestAgent(t, gen)

	_, err := a.ProcessUpload(context.Background(), "notes.pdf", strings.NewReader(strings.Repeat("plain text ", 20)))

	var extErr *ingestion.ExtractionError
	require.True(t, errors.As(err, &extErr), "expected ExtractionError, got %v", err)
	gen.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything)
	assert.Empty(t, outputFiles(t, a))

	// The upload itself is kept
	_, statErr := os.Stat(filepath.Join(a.FileHandler.InputsDir(), "notes.pdf"))
	assert.NoError(t, statErr)
}

func TestProcessUpload_GeneratedName(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, mock.Anything).Return("{}", nil)
	a := newTestAgent(t, gen)

	result, err := a.ProcessUpload(context.Background(), "", bytes.NewReader(testutil.BuildPDF("x")))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.FileName, "uploaded_"))
	assert.True(t, strings.HasSuffix(result.FileName, ".pdf"))
	assert.Equal(t, strings.TrimSuffix(result.FileName, ".pdf")+".json", filepath.Base(result.OutputPath))
}

func TestProcessUpload_EmptyTextStillGenerates(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, prompt.Build("")).Return("{}", nil).Once()
	a := newTestAgent(t, gen)

	_, err := a.ProcessUpload(context.Background(), "empty.pdf", bytes.NewReader(testutil.BuildPDF()))
	require.NoError(t, err)
	gen.AssertExpectations(t)
}

func TestProcessUpload_MirrorFailureIsNotFatal(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, mock.Anything).Return("{}", nil)

	m := &mockMirror{}
	m.On("MirrorFile", "inputs", "cv.pdf").Return("", errors.New("bucket missing"))
	m.On("MirrorFile", "outputs", "cv.json").Return("s3://b/outputs/cv.json", nil)

	a := newTestAgent(t, gen, WithMirror(m))
	_, err := a.ProcessUpload(context.Background(), "cv.pdf", bytes.NewReader(testutil.BuildPDF("x")))

	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestProcessUpload_ConcurrentDistinctNames(t *testing.T) {
	gen := funcGenerator(func(ctx context.Context, p string) (string, error) {
		switch {
		case strings.Contains(p, "Alice Resume"):
			return `{"Name": "Alice"}`, nil
		case strings.Contains(p, "Bob Resume"):
			return `{"Name": "Bob"}`, nil
		}
		return "", errors.New("unexpected prompt")
	})
	a := newTestAgent(t, gen)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, who := range []string{"Alice", "Bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pdf := testutil.BuildPDF(who + " Resume")
			_, errs[i] = a.ProcessUpload(context.Background(), strings.ToLower(who)+".pdf", bytes.NewReader(pdf))
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	alice, err := a.FileHandler.ReadResult("alice.json")
	require.NoError(t, err)
	bob, err := a.FileHandler.ReadResult("bob.json")
	require.NoError(t, err)

	assert.Equal(t, `{"Name": "Alice"}`, alice)
	assert.Equal(t, `{"Name": "Bob"}`, bob)
}

func TestProcessUpload_PromptCap(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Text: ABCD\n") && !strings.Contains(p, "ABCDE")
	})).Return("{}", nil).Once()

	a := newTestAgent(t, gen, WithPromptBuilder(prompt.Builder{MaxTextLen: 4}))
	_, err := a.ProcessUpload(context.Background(), "cap.pdf", bytes.NewReader(testutil.BuildPDF("ABCDEFGH")))

	require.NoError(t, err)
	gen.AssertExpectations(t)
}

func TestIngestFromGmail(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, mock.Anything).Return("{}", nil)
	a := newTestAgent(t, gen, WithBatchLimit(2))

	require.NoError(t, os.MkdirAll(a.FileHandler.InputsDir(), 0755))
	os.WriteFile(filepath.Join(a.FileHandler.InputsDir(), "Jane_cv.pdf"), testutil.BuildPDF("Jane"), 0644)
	os.WriteFile(filepath.Join(a.FileHandler.InputsDir(), "John_cv.txt"), []byte("John plain text"), 0644)
	os.WriteFile(filepath.Join(a.FileHandler.InputsDir(), "Bad_cv.pdf"), []byte(strings.Repeat("junk ", 40)), 0644)

	var progress []int
	var mu sync.Mutex
	a.SetProgressCallback(func(current, total int, message string) {
		mu.Lock()
		progress = append(progress, current)
		mu.Unlock()
	})

	fetcher := stubFetcher{names: []string{"Jane_cv.pdf", "John_cv.txt", "Bad_cv.pdf"}}
	resp, err := a.IngestFromGmail(context.Background(), fetcher, "Application")
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Processed)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Items, 3)
	assert.Equal(t, "Jane_cv.pdf", resp.Items[0].FileName)
	assert.Equal(t, "{}", resp.Items[0].LLMResponse)
	assert.NotEmpty(t, resp.Items[2].Error)
	assert.Len(t, progress, 4)
}

func TestIngestFromGmail_FetchError(t *testing.T) {
	a := newTestAgent(t, &mockGenerator{})

	_, err := a.IngestFromGmail(context.Background(), stubFetcher{err: ingestion.ErrNoMessages}, "x")
	assert.ErrorIs(t, err, ingestion.ErrNoMessages)
}

func TestProcessInputs_SkipsProcessed(t *testing.T) {
	var calls int
	var mu sync.Mutex
	gen := funcGenerator(func(ctx context.Context, p string) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "{}", nil
	})
	a := newTestAgent(t, gen)

	require.NoError(t, os.MkdirAll(a.FileHandler.InputsDir(), 0755))
	os.WriteFile(filepath.Join(a.FileHandler.InputsDir(), "done.txt"), []byte("done"), 0644)
	os.WriteFile(filepath.Join(a.FileHandler.InputsDir(), "new.txt"), []byte("new"), 0644)
	os.WriteFile(filepath.Join(a.FileHandler.InputsDir(), "image.png"), []byte("png"), 0644)
	_, err := a.FileHandler.SaveResult("done.txt", "{}")
	require.NoError(t, err)

	resp, err := a.ProcessInputs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Processed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "new.txt", resp.Items[0].FileName)
}

func TestGetReport(t *testing.T) {
	a := newTestAgent(t, &mockGenerator{})

	report, err := a.GetReport()
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)

	for i := 0; i < 3; i++ {
		_, err := a.FileHandler.SaveResult(fmt.Sprintf("cv%d.pdf", i), "{}")
		require.NoError(t, err)
	}

	_, err = a.FileHandler.SaveResult("full.pdf", `{"Name":"A","Contact Information":{},"Summary":"","Skills":[],"Experience":[],"Education":[]}`)
	require.NoError(t, err)

	report, err = a.GetReport()
	require.NoError(t, err)
	require.Equal(t, 4, report.Total)
	assert.True(t, report.Artifacts[0].ValidJSON)
	assert.Equal(t, 0, report.Artifacts[0].FieldsFound)

	full := report.Artifacts[3]
	assert.Equal(t, "full.json", full.FileName)
	assert.Equal(t, 6, full.FieldsFound)
	assert.InDelta(t, 100.0, full.Coverage, 1e-9)
}
