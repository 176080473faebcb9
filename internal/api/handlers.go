package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"task-tracker/internal/model"
	"task-tracker/internal/service"
)

// registerRequest carries no chat id: a Telegram chat is attached only
// through the bot's /link command, which proves control of the chat.
type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	DueDate     string `json:"dueDate"`
	DueTime     string `json:"dueTime"`
	Priority    string `json:"priority"`
}

type userResponse struct {
	ID       uint    `json:"id"`
	Username string  `json:"username"`
	Email    *string `json:"email,omitempty"`
	Role     string  `json:"role"`
}

func (r taskRequest) input() service.TaskInput {
	return service.TaskInput{
		Title:       r.Title,
		Description: r.Description,
		Completed:   r.Completed,
		DueDate:     r.DueDate,
		DueTime:     r.DueTime,
		Priority:    r.Priority,
	}
}

func newAuthResponse(res service.AuthResult) authResponse {
	return authResponse{Token: res.Token, Username: res.Username, ExpiresAt: res.ExpiresAt}
}

func (s *server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	res, err := s.Users.Register(c.Request().Context(), service.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, newAuthResponse(res))
}

func (s *server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	res, err := s.Users.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, newAuthResponse(res))
}

func (s *server) listTasks(c echo.Context) error {
	var completed *bool
	if raw := c.QueryParam("completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "completed must be true or false")
		}
		completed = &v
	}
	tasks, err := s.Tasks.List(c.Request().Context(), caller(c), completed)
	if err != nil {
		return s.writeError(c, err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *server) getTask(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	task, err := s.Tasks.Get(c.Request().Context(), caller(c), id)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *server) createTask(c echo.Context) error {
	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	task, err := s.Tasks.Create(c.Request().Context(), caller(c), req.input())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *server) updateTask(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	task, err := s.Tasks.Update(c.Request().Context(), caller(c), id, req.input())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *server) deleteTask(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	if err := s.Tasks.Delete(c.Request().Context(), caller(c), id); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *server) listUsers(c echo.Context) error {
	users, err := s.Users.ListUsers(c.Request().Context(), caller(c))
	if err != nil {
		return s.writeError(c, err)
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *server) deleteUser(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	if err := s.Users.DeleteUser(c.Request().Context(), caller(c), id); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func pathID(c echo.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
