package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/resume-parser/internal/models"
)

// maxCellChars is the Excel limit on characters in one cell
const maxCellChars = 32767

const (
	summarySheet   = "Summary"
	artifactsSheet = "Artifacts"
	responsesSheet = "Responses"
)

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// ExportToExcel writes the artifact report to outputPath, adding .xlsx if missing
func ExportToExcel(report models.ReportResponse, outputPath string) error {
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	f, err := buildWorkbook(report)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(outputPath); err != nil {
		// Fall back to a buffered write
		var buf bytes.Buffer
		if writeErr := f.Write(&buf); writeErr != nil {
			return fmt.Errorf("failed to save Excel file: direct save failed (%v), buffer write also failed: %w", err, writeErr)
		}
		if fileErr := os.WriteFile(outputPath, buf.Bytes(), 0644); fileErr != nil {
			return fmt.Errorf("failed to save Excel file: direct save failed (%v), file write failed: %w", err, fileErr)
		}
	}

	return nil
}

// WriteExcel streams the artifact report workbook to w
func WriteExcel(report models.ReportResponse, w io.Writer) error {
	f, err := buildWorkbook(report)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel report: %w", err)
	}
	return nil
}

func buildWorkbook(report models.ReportResponse) (*excelize.File, error) {
	f := excelize.NewFile()

	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(artifactsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create artifacts sheet: %w", err)
	}
	if _, err := f.NewSheet(responsesSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create responses sheet: %w", err)
	}

	if err := createSummarySheet(f, report); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := createArtifactsSheet(f, report.Artifacts); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create artifacts sheet: %w", err)
	}
	if err := createResponsesSheet(f, report.Artifacts); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create responses sheet: %w", err)
	}

	return f, nil
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
}

// createSummarySheet writes totals for the report
func createSummarySheet(f *excelize.File, report models.ReportResponse) error {
	f.SetColWidth(summarySheet, "A", "A", 28)
	f.SetColWidth(summarySheet, "B", "B", 40)

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	labelStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return err
	}

	f.SetCellValue(summarySheet, "A1", "Resume Parsing Report")
	f.SetCellStyle(summarySheet, "A1", "B1", titleStyle)
	f.MergeCell(summarySheet, "A1", "B1")

	var valid int
	var totalSize int64
	var coverage float64
	for _, a := range report.Artifacts {
		if a.ValidJSON {
			valid++
		}
		totalSize += a.SizeBytes
		coverage += a.Coverage
	}
	if len(report.Artifacts) > 0 {
		coverage /= float64(len(report.Artifacts))
	}

	rows := []struct {
		label string
		value any
	}{
		{"Generated:", report.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Total Artifacts:", len(report.Artifacts)},
		{"Parseable JSON:", valid},
		{"Other Output:", len(report.Artifacts) - valid},
		{"Total Size (bytes):", totalSize},
		{"Average Coverage %:", fmt.Sprintf("%.1f", coverage)},
	}

	for i, r := range rows {
		row := i + 3
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), r.label)
		f.SetCellStyle(summarySheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), labelStyle)
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), r.value)
	}

	return nil
}

// createArtifactsSheet lists one artifact per row, highlighting output that
// does not parse as JSON
func createArtifactsSheet(f *excelize.File, artifacts []models.ArtifactSummary) error {
	f.SetColWidth(artifactsSheet, "A", "A", 36)
	f.SetColWidth(artifactsSheet, "B", "B", 12)
	f.SetColWidth(artifactsSheet, "C", "C", 20)
	f.SetColWidth(artifactsSheet, "D", "D", 12)
	f.SetColWidth(artifactsSheet, "E", "F", 14)
	f.SetColWidth(artifactsSheet, "G", "G", 12)

	header, err := headerStyle(f)
	if err != nil {
		return err
	}

	validStyle, _ := f.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"C6EFCE"}, Pattern: 1},
		Border: thinBorder,
	})
	invalidStyle, _ := f.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"FFC7CE"}, Pattern: 1},
		Border: thinBorder,
	})

	headers := []string{"File", "Size (bytes)", "Modified", "Valid JSON", "Fields Found", "Coverage %", "Link"}
	for col, h := range headers {
		cell := fmt.Sprintf("%s1", string(rune('A'+col)))
		f.SetCellValue(artifactsSheet, cell, h)
		f.SetCellStyle(artifactsSheet, cell, cell, header)
	}

	for i, a := range artifacts {
		row := i + 2
		f.SetCellValue(artifactsSheet, fmt.Sprintf("A%d", row), a.FileName)
		f.SetCellValue(artifactsSheet, fmt.Sprintf("B%d", row), a.SizeBytes)
		f.SetCellValue(artifactsSheet, fmt.Sprintf("C%d", row), a.ModifiedAt.Format("2006-01-02 15:04:05"))
		if a.ValidJSON {
			f.SetCellValue(artifactsSheet, fmt.Sprintf("D%d", row), "yes")
		} else {
			f.SetCellValue(artifactsSheet, fmt.Sprintf("D%d", row), "no")
		}
		f.SetCellValue(artifactsSheet, fmt.Sprintf("E%d", row), a.FieldsFound)
		f.SetCellValue(artifactsSheet, fmt.Sprintf("F%d", row), fmt.Sprintf("%.1f", a.Coverage))

		style := validStyle
		if !a.ValidJSON {
			style = invalidStyle
		}
		f.SetCellStyle(artifactsSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row), style)

		if a.Path != "" {
			linkCell := fmt.Sprintf("G%d", row)
			absPath, err := filepath.Abs(a.Path)
			if err != nil {
				absPath = a.Path
			}
			f.SetCellValue(artifactsSheet, linkCell, "Open")
			f.SetCellHyperLink(artifactsSheet, linkCell, "file:///"+strings.ReplaceAll(absPath, "\\", "/"), "External")
		}
	}

	if len(artifacts) > 0 {
		f.AutoFilter(artifactsSheet, fmt.Sprintf("A1:G%d", len(artifacts)+1), []excelize.AutoFilterOptions{})
	}

	f.SetPanes(artifactsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	return nil
}

// createResponsesSheet writes each artifact's raw text next to its name
func createResponsesSheet(f *excelize.File, artifacts []models.ArtifactSummary) error {
	f.SetColWidth(responsesSheet, "A", "A", 36)
	f.SetColWidth(responsesSheet, "B", "B", 100)

	header, err := headerStyle(f)
	if err != nil {
		return err
	}
	wrapStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    thinBorder,
	})

	f.SetCellValue(responsesSheet, "A1", "File")
	f.SetCellValue(responsesSheet, "B1", "Response")
	f.SetCellStyle(responsesSheet, "A1", "B1", header)

	for i, a := range artifacts {
		row := i + 2
		f.SetCellValue(responsesSheet, fmt.Sprintf("A%d", row), a.FileName)
		f.SetCellValue(responsesSheet, fmt.Sprintf("B%d", row), truncateCell(a.Content))
		f.SetCellStyle(responsesSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), wrapStyle)
	}

	f.SetPanes(responsesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	return nil
}

// truncateCell cuts s to maxCellChars characters on a rune boundary
func truncateCell(s string) string {
	if utf8.RuneCountInString(s) <= maxCellChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxCellChars {
			return s[:i]
		}
		n++
	}
	return s
}
