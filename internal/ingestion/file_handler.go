package ingestion

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fmuoria/resume-parser/internal/models"
)

// StorageError reports a failed filesystem operation on inputs or outputs
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// FileHandler manages the inputs and outputs directories
type FileHandler struct {
	inputsDir  string
	outputsDir string
	logger     *logrus.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(inputsDir, outputsDir string, logger *logrus.Logger) *FileHandler {
	return &FileHandler{
		inputsDir:  inputsDir,
		outputsDir: outputsDir,
		logger:     logger,
	}
}

// InputsDir returns the directory uploads are written to
func (fh *FileHandler) InputsDir() string {
	return fh.inputsDir
}

// OutputsDir returns the directory artifacts are written to
func (fh *FileHandler) OutputsDir() string {
	return fh.outputsDir
}

// StorageName picks the name an upload is stored under: the base name of
// the client-supplied name, or a generated uploaded_<uuid>.pdf.
func StorageName(clientName string) string {
	name := strings.ReplaceAll(clientName, `\`, "/")
	if name != "" {
		name = filepath.Base(name)
	}
	if name == "" || name == "." || name == "/" || name == ".." {
		return fmt.Sprintf("uploaded_%s.pdf", uuid.New().String())
	}
	return name
}

// OutputName strips the extension of a storage name and appends .json
func OutputName(storageName string) string {
	ext := filepath.Ext(storageName)
	base := strings.TrimSuffix(storageName, ext)
	if base == "" {
		// dotfile such as ".pdf" has no extension to strip
		base = storageName
	}
	return base + ".json"
}

// SaveUpload writes content to the inputs directory under name, replacing
// any existing file of that name
func (fh *FileHandler) SaveUpload(name string, content io.Reader) (string, error) {
	if err := os.MkdirAll(fh.inputsDir, 0755); err != nil {
		return "", &StorageError{Op: "create directory", Path: fh.inputsDir, Err: err}
	}

	filePath := filepath.Join(fh.inputsDir, name)
	if _, err := os.Stat(filePath); err == nil {
		fh.logger.WithField("file_name", name).Warn("Overwriting existing upload")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return "", &StorageError{Op: "create", Path: filePath, Err: err}
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		return "", &StorageError{Op: "write", Path: filePath, Err: err}
	}

	return filePath, nil
}

// SaveResult writes the generation text for storageName to the outputs
// directory. A reader never sees a partial artifact.
func (fh *FileHandler) SaveResult(storageName, content string) (string, error) {
	if err := os.MkdirAll(fh.outputsDir, 0755); err != nil {
		return "", &StorageError{Op: "create directory", Path: fh.outputsDir, Err: err}
	}

	filePath := filepath.Join(fh.outputsDir, OutputName(storageName))
	if _, err := os.Stat(filePath); err == nil {
		fh.logger.WithField("output_file", filepath.Base(filePath)).Warn("Overwriting existing artifact")
	}

	// The pending file lives next to the artifact so the rename stays on one filesystem
	if err := renameio.WriteFile(filePath, []byte(content), 0644, renameio.WithTempDir(fh.outputsDir)); err != nil {
		return "", &StorageError{Op: "write", Path: filePath, Err: err}
	}

	return filePath, nil
}

// ListResults returns a summary of every artifact in the outputs directory,
// sorted by file name. Each artifact is read once and its text carried in
// Content.
func (fh *FileHandler) ListResults() ([]models.ArtifactSummary, error) {
	entries, err := os.ReadDir(fh.outputsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.ArtifactSummary{}, nil
		}
		return nil, &StorageError{Op: "read directory", Path: fh.outputsDir, Err: err}
	}

	results := make([]models.ArtifactSummary, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.ToLower(filepath.Ext(name)) != ".json" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, &StorageError{Op: "stat", Path: name, Err: err}
		}

		filePath := filepath.Join(fh.outputsDir, name)
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, &StorageError{Op: "read", Path: filePath, Err: err}
		}

		results = append(results, models.ArtifactSummary{
			FileName:   name,
			Path:       filePath,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
			ValidJSON:  models.LooksLikeJSON(string(data)),
			Content:    string(data),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].FileName < results[j].FileName
	})

	return results, nil
}

// ReadResult returns the contents of an artifact by its output file name
func (fh *FileHandler) ReadResult(outputName string) (string, error) {
	filePath := filepath.Join(fh.outputsDir, filepath.Base(outputName))
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", &StorageError{Op: "read", Path: filePath, Err: err}
	}
	return string(data), nil
}
