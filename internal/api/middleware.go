package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"task-tracker/internal/auth"
)

const ctxUsername = "username"

// identify attaches the caller's username to the context when the request
// carries a valid bearer token. Requests without one continue anonymously;
// each operation decides whether that is acceptable.
func identify(guard *auth.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if username, ok := guard.Identify(c.Request().Header.Get(echo.HeaderAuthorization)); ok {
				c.Set(ctxUsername, username)
			}
			return next(c)
		}
	}
}

// caller returns the authenticated username, or "" for anonymous requests.
func caller(c echo.Context) string {
	username, _ := c.Get(ctxUsername).(string)
	return username
}

func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(log.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request failed")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}
