package ingestion

import (
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	// BinarySampleSize is the number of bytes to sample for binary detection
	BinarySampleSize = 1000
	// BinaryThreshold is the proportion of non-printable characters that indicates binary data
	BinaryThreshold = 0.3
)

// ErrUnsupportedType is returned for file extensions ExtractText cannot read
var ErrUnsupportedType = errors.New("unsupported file type")

// ExtractionError reports a source that is not a readable document
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("text extraction failed: %v", e.Err)
	}
	return fmt.Sprintf("text extraction failed for %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Document is the extracted text of one file
type Document struct {
	Text      string
	PageCount int
}

// pageSource yields per-page text in document order. Pages are numbered from 1.
type pageSource interface {
	NumPage() int
	PageText(num int) (string, error)
}

// joinPages appends a newline after every page's text. A page that fails
// contributes an empty segment.
func joinPages(src pageSource) string {
	var sb strings.Builder
	for i := 1; i <= src.NumPage(); i++ {
		text, err := src.PageText(i)
		if err == nil {
			sb.WriteString(text)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// pdfPages adapts a pdf.Reader to pageSource
type pdfPages struct {
	r *pdf.Reader
}

func (p pdfPages) NumPage() int {
	return p.r.NumPage()
}

func (p pdfPages) PageText(num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", num, r)
		}
	}()

	page := p.r.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	// The first text positioning operator on a page emits a newline
	return strings.TrimPrefix(text, "\n"), nil
}

// ReadPDF extracts the text of every page of a PDF read from r
func ReadPDF(r io.ReaderAt, size int64) (doc *Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			doc = nil
			err = &ExtractionError{Err: fmt.Errorf("malformed pdf: %v", rec)}
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}

	pages := pdfPages{r: reader}
	return &Document{
		Text:      joinPages(pages),
		PageCount: pages.NumPage(),
	}, nil
}

// ExtractPDFText returns the concatenated page text of a PDF
func ExtractPDFText(r io.ReaderAt, size int64) (string, error) {
	doc, err := ReadPDF(r, size)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

// ExtractPDFFile reads the PDF at path
func ExtractPDFFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	doc, err := ReadPDF(f, info.Size())
	if err != nil {
		var extErr *ExtractionError
		if errors.As(err, &extErr) {
			extErr.Path = path
		}
		return nil, err
	}
	return doc, nil
}

// ExtractText extracts text from PDF, DOCX, or TXT files
func ExtractText(path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".pdf":
		return ExtractPDFFile(path)
	case ".docx":
		return extractDOCX(path)
	case ".txt":
		return extractTXT(path)
	default:
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("%w: %q", ErrUnsupportedType, ext)}
	}
}

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	docxTag          = regexp.MustCompile(`<[^>]+>`)
)

func extractDOCX(path string) (*Document, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("failed to parse docx: %w", err)}
	}
	defer r.Close()

	content := r.Editable().GetContent()
	content = docxParagraphEnd.ReplaceAllString(content, "\n")
	content = docxTag.ReplaceAllString(content, "")

	return &Document{Text: html.UnescapeString(content), PageCount: 1}, nil
}

func extractTXT(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	if IsBinaryData(string(data)) {
		return nil, &ExtractionError{Path: path, Err: errors.New("file has a .txt extension but binary content")}
	}
	return &Document{Text: string(data), PageCount: 1}, nil
}

// IsBinaryData checks if content appears to be binary (PDF/ZIP markers)
func IsBinaryData(content string) bool {
	if len(content) == 0 {
		return false
	}

	if strings.HasPrefix(content, "%PDF-") {
		return true
	}

	// ZIP magic number (DOCX)
	if strings.HasPrefix(content, "PK") {
		return true
	}

	sampleSize := min(BinarySampleSize, len(content))
	nonPrintable := 0
	for i := 0; i < sampleSize; i++ {
		ch := content[i]
		if ch < 32 && ch != '\n' && ch != '\r' && ch != '\t' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(sampleSize) > BinaryThreshold
}
