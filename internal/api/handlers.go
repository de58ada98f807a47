package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fmuoria/resume-parser/internal/export"
	"github.com/fmuoria/resume-parser/internal/ingestion"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	reportFileName  = "resume_report.xlsx"
)

// handleRoot provides API information
func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":   "API is Running...",
		"endpoints": []string{"/upload/"},
		"service":   "Resume Parser",
		"version":   Version,
	})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handleUpload stores one uploaded resume and returns the model output.
// A "file" part sent without a filename is accepted and given a generated name.
func (s *Server) handleUpload(c echo.Context) error {
	var (
		clientName string
		content    io.Reader
	)

	fileHeader, err := c.FormFile("file")
	switch {
	case err == nil:
		src, err := fileHeader.Open()
		if err != nil {
			return NewBadRequestError("failed to open uploaded file", err)
		}
		defer src.Close()
		clientName = fileHeader.Filename
		content = src
	case errors.Is(err, http.ErrMissingFile):
		value := c.FormValue("file")
		if value == "" {
			return NewBadRequestError("file is required", err)
		}
		content = strings.NewReader(value)
	default:
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return NewBadRequestError("failed to parse multipart form", err)
	}

	result, err := s.agent.ProcessUpload(c.Request().Context(), clientName, content)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result.ToUploadResponse())
}

// handleReport returns the artifact report as a workbook, or as JSON when
// format=json is given
func (s *Server) handleReport(c echo.Context) error {
	report, err := s.agent.GetReport()
	if err != nil {
		return NewInternalError("failed to list artifacts", err)
	}

	if c.QueryParam("format") == "json" {
		return c.JSON(http.StatusOK, report)
	}

	var buf bytes.Buffer
	if err := export.WriteExcel(report, &buf); err != nil {
		return NewInternalError("failed to build report", err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+reportFileName+`"`)
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

// handleGetResult returns one saved artifact as stored
func (s *Server) handleGetResult(c echo.Context) error {
	name := c.Param("name")
	content, err := s.agent.FileHandler.ReadResult(ingestion.OutputName(name))
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSONCharsetUTF8, []byte(content))
}

// handleGmailIngest fetches attachments for a subject and processes each one
func (s *Server) handleGmailIngest(c echo.Context) error {
	subject := strings.TrimSpace(c.FormValue("subject"))
	if subject == "" {
		return NewValidationError("subject")
	}
	if s.gmail == nil {
		return NewServiceUnavailableError("Gmail ingestion is not configured", nil)
	}

	ctx := c.Request().Context()
	fetcher, err := s.gmail(ctx)
	if err != nil {
		return NewServiceUnavailableError("Gmail is not available", err)
	}

	resp, err := s.agent.IngestFromGmail(ctx, fetcher, subject)
	if err != nil {
		if errors.Is(err, ingestion.ErrNoMessages) {
			return NewNotFoundError("messages with subject", subject)
		}
		return newAPIError(http.StatusBadGateway, "GMAIL_FAILED", "failed to fetch Gmail attachments", err)
	}

	return c.JSON(http.StatusOK, resp)
}
