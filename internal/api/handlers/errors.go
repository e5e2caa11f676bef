package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func StatusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindInvalidState:
		return http.StatusUnprocessableEntity
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewHTTPErrorHandler renders domain errors and echo errors in one shape.
// Internal causes are logged and never returned to the client.
func NewHTTPErrorHandler(log logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := errorBody(err)
		if status >= http.StatusInternalServerError {
			log.Error("Request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Error("Failed to write error response", "error", err)
		}
	}
}

func errorBody(err error) (int, ErrorResponse) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok {
			message = m
		}
		return httpErr.Code, ErrorResponse{Code: httpCode(httpErr.Code), Message: message}
	}

	derr := domain.AsError(err)
	status := StatusForKind(derr.Kind)
	if status == http.StatusInternalServerError {
		return status, ErrorResponse{Code: string(domain.KindInternal), Message: "internal error"}
	}
	return status, ErrorResponse{Code: string(derr.Kind), Message: derr.Message, Details: derr.Details}
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(domain.KindInvalidArgument)
	case http.StatusNotFound:
		return string(domain.KindNotFound)
	case http.StatusInternalServerError:
		return string(domain.KindInternal)
	}
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}
