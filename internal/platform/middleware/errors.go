package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// APIError is the body of every error response:
// {"error": {"code": "...", "message": "..."}}.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

// NewHTTPError is echo.NewHTTPError with an APIError body.
func NewHTTPError(status int, code, message string) *echo.HTTPError {
	return echo.NewHTTPError(status, ErrorResponse{Error: APIError{Code: code, Message: message}})
}

// codeForStatus names the errors raised by echo itself and by middleware
// that only set a status and a string.
func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusGatewayTimeout:
		return "timeout"
	}
	if status >= 500 {
		return "internal"
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

// ErrorHandler renders every error in the APIError shape. Errors that are
// not *echo.HTTPError become a logged 500 without internal detail.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if !errors.As(err, &he) {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("unhandled error")
			he = NewHTTPError(http.StatusInternalServerError, "internal", "internal server error")
		}

		var body ErrorResponse
		switch m := he.Message.(type) {
		case ErrorResponse:
			body = m
		case string:
			body = ErrorResponse{Error: APIError{Code: codeForStatus(he.Code), Message: m}}
		default:
			body = ErrorResponse{Error: APIError{Code: codeForStatus(he.Code), Message: http.StatusText(he.Code)}}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(he.Code)
		} else {
			werr = c.JSON(he.Code, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
