// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/fmuoria/resume-parser/internal/ingestion"
	"github.com/fmuoria/resume-parser/internal/llm"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newAPIError(status int, code, message string, cause error) *APIError {
	err := &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	return newAPIError(http.StatusBadRequest, "BAD_REQUEST", message, cause)
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewExtractionError creates a 422 error for documents whose text could not be read
func NewExtractionError(cause error) *APIError {
	return newAPIError(http.StatusUnprocessableEntity, "EXTRACTION_FAILED", "could not extract text from document", cause)
}

// NewGenerationError creates a 502 error for a failed model call
func NewGenerationError(cause error) *APIError {
	return newAPIError(http.StatusBadGateway, "GENERATION_FAILED", "language model request failed", cause)
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", message, cause)
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string, cause error) *APIError {
	return newAPIError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, cause)
}

// toAPIError maps pipeline errors onto response errors
func toAPIError(err error) *APIError {
	var (
		apiErr     *APIError
		httpErr    *echo.HTTPError
		extractErr *ingestion.ExtractionError
		genErr     *llm.GenerationError
		storeErr   *ingestion.StorageError
	)

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &extractErr):
		return NewExtractionError(err)
	case errors.As(err, &genErr):
		return NewGenerationError(err)
	case errors.As(err, &storeErr):
		if errors.Is(err, fs.ErrNotExist) {
			return NewNotFoundError("file", storeErr.Path)
		}
		return NewInternalError("failed to access storage", err)
	case errors.As(err, &httpErr):
		return &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		return NewInternalError("An unexpected error occurred", err)
	}
}

// NewErrorHandler returns an echo error handler that writes APIError bodies
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(logger)
func NewErrorHandler(logger *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		apiErr := toAPIError(err)

		entry := logger.WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Request().URL.Path,
			"status": apiErr.Status,
			"code":   apiErr.Code,
		})
		if apiErr.Status >= http.StatusInternalServerError {
			entry.WithError(err).Error("Request failed")
		} else {
			entry.Debug(apiErr.Message)
		}

		if c.Request().Method == http.MethodHead {
			c.NoContent(apiErr.Status)
			return
		}
		c.JSON(apiErr.Status, apiErr)
	}
}
