package models

import (
	"encoding/json"
	"strings"
	"time"
)

// UploadResponse is the body returned by the upload endpoint
type UploadResponse struct {
	FileName    string `json:"file_name"`
	LLMResponse string `json:"llm_response"`
}

// ParseResult describes one completed pass through the pipeline
type ParseResult struct {
	FileName   string        `json:"file_name"`
	InputPath  string        `json:"input_path"`
	OutputPath string        `json:"output_path"`
	Response   string        `json:"llm_response"`
	PageCount  int           `json:"page_count"`
	TextLength int           `json:"text_length"`
	Duration   time.Duration `json:"duration"`
}

// ToUploadResponse returns the public view of the result
func (r ParseResult) ToUploadResponse() UploadResponse {
	return UploadResponse{
		FileName:    r.FileName,
		LLMResponse: r.Response,
	}
}

// ArtifactSummary describes a saved output artifact
type ArtifactSummary struct {
	FileName    string    `json:"file_name"`
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"size_bytes"`
	ModifiedAt  time.Time `json:"modified_at"`
	ValidJSON   bool      `json:"valid_json"` // informational only
	FieldsFound int       `json:"fields_found"`
	Coverage    float64   `json:"coverage"` // percent of requested fields present
	Content     string    `json:"-"`
}

// ReportResponse lists every saved artifact
type ReportResponse struct {
	Artifacts   []ArtifactSummary `json:"artifacts"`
	Total       int               `json:"total"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Event types published after processing
const (
	EventProcessed = "resume.processed"
	EventFailed    = "resume.failed"
)

// ProcessingEvent is published to the broker once per upload
type ProcessingEvent struct {
	Type       string    `json:"type"`
	FileName   string    `json:"file_name"`
	OutputFile string    `json:"output_file,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// BatchItem is one file's outcome in a batch ingestion
type BatchItem struct {
	FileName    string `json:"file_name"`
	LLMResponse string `json:"llm_response,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BatchResponse is returned by batch ingestion endpoints
type BatchResponse struct {
	Processed int         `json:"processed"`
	Failed    int         `json:"failed"`
	Items     []BatchItem `json:"items"`
}

// StripCodeFence removes a surrounding ```json ... ``` block if present.
// Models frequently wrap JSON output this way.
func StripCodeFence(s string) string {
	clean := strings.TrimSpace(s)
	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	return strings.TrimSpace(clean)
}

// LooksLikeJSON reports whether s parses as JSON once any code fence is removed
func LooksLikeJSON(s string) bool {
	return json.Valid([]byte(StripCodeFence(s)))
}
