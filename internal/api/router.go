// Package api exposes the task tracker over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"task-tracker/internal/auth"
	"task-tracker/internal/notify"
	"task-tracker/internal/service"
)

const defaultKeepAlive = 30 * time.Second

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Users       *service.UserService
	Tasks       *service.TaskService
	Hub         *notify.Hub
	Guard       *auth.Guard
	DB          Pinger
	Logger      *log.Logger
	CORSOrigins []string
	// KeepAlive is the interval between SSE heartbeat comments.
	KeepAlive   time.Duration
}

type server struct {
	Deps
}

// New builds the echo instance with middleware and every route registered.
func New(deps Deps) *echo.Echo {
	if deps.KeepAlive <= 0 {
		deps.KeepAlive = defaultKeepAlive
	}
	s := &server{Deps: deps}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(deps.Logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: deps.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(identify(deps.Guard))

	e.GET("/healthz", s.healthz)

	authGroup := e.Group("/api/auth")
	authGroup.POST("/register", s.register)
	authGroup.POST("/login", s.login)

	tasks := e.Group("/api/tasks")
	tasks.GET("", s.listTasks)
	tasks.POST("", s.createTask)
	tasks.GET("/:id", s.getTask)
	tasks.PUT("/:id", s.updateTask)
	tasks.DELETE("/:id", s.deleteTask)

	admin := e.Group("/api/admin")
	admin.GET("/users", s.listUsers)
	admin.DELETE("/users/:id", s.deleteUser)

	e.GET("/api/notifications/stream", s.streamNotifications)

	return e
}

func (s *server) healthz(c echo.Context) error {
	if s.DB != nil {
		if err := s.DB.PingContext(c.Request().Context()); err != nil {
			s.Logger.Errorf("healthz: %v", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
	}
	return c.NoContent(http.StatusOK)
}
