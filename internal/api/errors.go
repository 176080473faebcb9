package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"task-tracker/internal/service"
)

const (
	msgUnauthorized = "Invalid username or password"
	msgAuthRequired = "Authentication required"
	msgForbidden    = "Forbidden"
	msgNotFound     = "Not found"
	msgInternal     = "internal error"
)

// writeError maps service errors to a status and a message safe to show.
func (s *server) writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": reason(err, service.ErrConflict)})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": msgUnauthorized})
	case errors.Is(err, service.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": msgAuthRequired})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": msgForbidden})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": msgNotFound})
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": reason(err, service.ErrInvalidInput)})
	default:
		s.Logger.WithField("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": msgInternal})
	}
}

// reason strips the sentinel prefix, leaving the specific detail.
func reason(err, kind error) string {
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
