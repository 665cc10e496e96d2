package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gracefellowship/fellowship/internal/service"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error sends a JSON error response.
func Error(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// mapServiceError translates a service error into its HTTP response. Errors
// that are not ServiceErrors are logged and reported as 500.
func mapServiceError(c echo.Context, err error) error {
	var se *service.ServiceError
	if !errors.As(err, &se) {
		slog.Error("unhandled service error", "path", c.Path(), "error", err)
		return Error(c, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(se, service.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(se, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(se, service.ErrForbidden), errors.Is(se, service.ErrRoleHierarchy):
		status = http.StatusForbidden
	case errors.Is(se, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(se, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(se, service.ErrGone):
		status = http.StatusGone
	case errors.Is(se, service.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	return Error(c, status, se.Code, se.Message)
}

// paramID parses a snowflake path parameter.
func paramID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil
}

// pageParams reads the before/limit cursor used by feed endpoints.
func pageParams(c echo.Context) (before *int64, limit int, err error) {
	limit = service.DefaultPageSize
	if l := c.QueryParam("limit"); l != "" {
		parsed, perr := strconv.Atoi(l)
		if perr != nil || parsed < 1 || parsed > service.MaxPageSize {
			return nil, 0, service.BadRequest("INVALID_LIMIT", "limit must be 1-100")
		}
		limit = parsed
	}
	if b := c.QueryParam("before"); b != "" {
		parsed, perr := strconv.ParseInt(b, 10, 64)
		if perr != nil {
			return nil, 0, service.BadRequest("INVALID_BEFORE", "invalid before cursor")
		}
		before = &parsed
	}
	return before, limit, nil
}
