package scoring

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/fmuoria/resume-parser/internal/models"
)

// Coverage reports which requested sections a model response contains
type Coverage struct {
	Found   []string `json:"found"`
	Missing []string `json:"missing"`
	Score   float64  `json:"score"` // percentage of fields present, 0-100
}

// Scorer checks saved model output against the requested fields.
// It never rejects output; artifacts are kept as the model returned them.
type Scorer struct {
	fields []string
}

// NewScorer creates a new scorer for the given field names
func NewScorer(fields []string) *Scorer {
	return &Scorer{
		fields: fields,
	}
}

// ScoreResponse parses response as a JSON object and reports field coverage
func (s *Scorer) ScoreResponse(response string) (Coverage, error) {
	obj, err := parseObject(response)
	if err != nil {
		return Coverage{Missing: append([]string(nil), s.fields...)}, err
	}

	keys := normalizedKeys(obj)
	cov := s.match(keys)

	// Models sometimes nest everything under a single key such as "resume"
	if len(cov.Found) == 0 && len(obj) == 1 {
		for _, inner := range obj {
			var nested map[string]json.RawMessage
			if json.Unmarshal(inner, &nested) == nil {
				cov = s.match(normalizedKeys(nested))
			}
		}
	}

	return cov, nil
}

func (s *Scorer) match(keys map[string]bool) Coverage {
	cov := Coverage{Found: []string{}, Missing: []string{}}
	for _, field := range s.fields {
		if keys[normalize(field)] {
			cov.Found = append(cov.Found, field)
		} else {
			cov.Missing = append(cov.Missing, field)
		}
	}
	if len(s.fields) > 0 {
		cov.Score = float64(len(cov.Found)) / float64(len(s.fields)) * 100
	}
	return cov
}

// parseObject extracts the outermost JSON object from response
func parseObject(response string) (map[string]json.RawMessage, error) {
	clean := models.StripCodeFence(response)

	// Find JSON in response (in case there's extra text)
	startIdx := strings.Index(clean, "{")
	endIdx := strings.LastIndex(clean, "}")
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean[startIdx:endIdx+1]), &obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return obj, nil
}

func normalizedKeys(obj map[string]json.RawMessage) map[string]bool {
	keys := make(map[string]bool, len(obj))
	for k := range obj {
		keys[normalize(k)] = true
	}
	return keys
}

// normalize folds "Contact Information", "contact_information" and
// "contactInformation" to the same key
func normalize(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return sb.String()
}
