package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"task-tracker/internal/notify"
)

// streamNotifications pushes the caller's notifications as server-sent
// events until the client goes away. EventSource cannot set headers, so the
// token may also arrive as ?token=.
func (s *server) streamNotifications(c echo.Context) error {
	username := caller(c)
	if username == "" {
		if token := c.QueryParam("token"); token != "" {
			username, _ = s.Guard.Identify("Bearer " + token)
		}
	}
	if username == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": msgAuthRequired})
	}

	res := c.Response()
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	session := s.Hub.Subscribe(username)
	defer session.Close()

	if _, err := res.Write([]byte(":ok\n\n")); err != nil {
		return nil
	}
	flusher.Flush()

	ctx := c.Request().Context()
	ticker := time.NewTicker(s.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, open := <-session.Events():
			if !open {
				return nil
			}
			data, err := notify.Encode(ev)
			if err != nil {
				s.Logger.Errorf("stream encode for %s: %v", username, err)
				continue
			}
			if _, err := res.Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := res.Write(data); err != nil {
				return nil
			}
			if _, err := res.Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := res.Write([]byte(":keepalive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
