package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"task-tracker/internal/auth"
	"task-tracker/internal/model"
	"task-tracker/internal/repository"
)

// TaskStore is the task persistence the services rely on.
type TaskStore interface {
	FindByID(ctx context.Context, id uint) (*model.Task, error)
	Save(ctx context.Context, task *model.Task) error
	DeleteByID(ctx context.Context, id uint) error
	FindAllByOwner(ctx context.Context, username string) ([]model.Task, error)
	FindAllByOwnerAndCompleted(ctx context.Context, username string, completed bool) ([]model.Task, error)
	FindAll(ctx context.Context) ([]model.Task, error)
}

// TaskInput represents the writable fields of a task.
type TaskInput struct {
	Title       string
	Description string
	Completed   bool
	DueDate     string
	DueTime     string
	Priority    string
}

// AccountFinder resolves a username to its account.
type AccountFinder interface {
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// TaskService wraps task-related business logic. Every operation resolves
// the caller's account and goes through auth.Authorize.
type TaskService struct {
	taskRepo TaskStore
	accounts AccountFinder
}

func NewTaskService(taskRepo TaskStore, accounts AccountFinder) *TaskService {
	return &TaskService{taskRepo: taskRepo, accounts: accounts}
}

// List returns the caller's tasks, most recent first, optionally filtered by completion.
func (s *TaskService) List(ctx context.Context, caller string, completed *bool) ([]model.Task, error) {
	id, err := resolveIdentity(ctx, s.accounts, caller)
	if err != nil {
		return nil, err
	}
	if err := policyError(auth.Authorize(id, auth.ActionTaskRead, nil)); err != nil {
		return nil, err
	}
	if completed != nil {
		return s.taskRepo.FindAllByOwnerAndCompleted(ctx, caller, *completed)
	}
	return s.taskRepo.FindAllByOwner(ctx, caller)
}

func (s *TaskService) Get(ctx context.Context, caller string, taskID uint) (*model.Task, error) {
	return s.load(ctx, caller, auth.ActionTaskRead, taskID)
}

func (s *TaskService) Create(ctx context.Context, caller string, input TaskInput) (*model.Task, error) {
	id, err := resolveIdentity(ctx, s.accounts, caller)
	if err != nil {
		return nil, err
	}
	if err := policyError(auth.Authorize(id, auth.ActionTaskCreate, nil)); err != nil {
		return nil, err
	}
	input, err = normalizeTaskInput(input)
	if err != nil {
		return nil, err
	}

	task := model.Task{Username: caller}
	apply(&task, input)
	if err := s.taskRepo.Save(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Update overwrites the writable fields of a task owned by the caller.
func (s *TaskService) Update(ctx context.Context, caller string, taskID uint, input TaskInput) (*model.Task, error) {
	task, err := s.load(ctx, caller, auth.ActionTaskUpdate, taskID)
	if err != nil {
		return nil, err
	}
	input, err = normalizeTaskInput(input)
	if err != nil {
		return nil, err
	}

	apply(task, input)
	err = s.taskRepo.Save(ctx, task)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, caller string, taskID uint) error {
	if _, err := s.load(ctx, caller, auth.ActionTaskDelete, taskID); err != nil {
		return err
	}
	return s.taskRepo.DeleteByID(ctx, taskID)
}

// load authenticates the caller first so anonymous requests learn nothing
// about which ids exist, then checks ownership of the loaded task.
func (s *TaskService) load(ctx context.Context, caller string, action auth.Action, taskID uint) (*model.Task, error) {
	id, err := resolveIdentity(ctx, s.accounts, caller)
	if err != nil {
		return nil, err
	}
	if err := policyError(auth.Authorize(id, action, nil)); err != nil {
		return nil, err
	}
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := policyError(auth.Authorize(id, action, &auth.Resource{Owner: task.Username})); err != nil {
		return nil, err
	}
	return task, nil
}

// resolveIdentity maps a token subject to the account behind it. A subject
// whose account no longer exists is anonymous.
func resolveIdentity(ctx context.Context, accounts AccountFinder, username string) (auth.Identity, error) {
	if username == "" {
		return auth.Identity{}, nil
	}
	user, err := accounts.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return auth.Identity{}, nil
	}
	if err != nil {
		return auth.Identity{}, err
	}
	return auth.Identity{Username: user.Username, Role: user.Role}, nil
}

func apply(task *model.Task, input TaskInput) {
	task.Title = input.Title
	task.Description = input.Description
	task.Completed = input.Completed
	task.DueDate = input.DueDate
	task.DueTime = input.DueTime
	task.Priority = input.Priority
}

func normalizeTaskInput(input TaskInput) (TaskInput, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.DueDate = strings.TrimSpace(input.DueDate)
	input.DueTime = strings.TrimSpace(input.DueTime)
	input.Priority = strings.ToUpper(strings.TrimSpace(input.Priority))

	if input.Title == "" {
		return input, invalidInput("title is required")
	}
	if input.DueDate != "" {
		if _, err := time.Parse(model.DueDateLayout, input.DueDate); err != nil {
			return input, invalidInput("dueDate must be formatted as YYYY-MM-DD")
		}
	}
	if input.DueTime != "" {
		if _, err := time.Parse(model.DueTimeLayout, input.DueTime); err != nil {
			if _, err := time.Parse(model.DueTimeLayoutSecond, input.DueTime); err != nil {
				return input, invalidInput("dueTime must be formatted as HH:MM")
			}
		}
	}
	switch input.Priority {
	case "":
		input.Priority = model.PriorityMedium
	case model.PriorityLow, model.PriorityMedium, model.PriorityHigh:
	default:
		return input, invalidInput("priority must be LOW, MEDIUM or HIGH")
	}
	return input, nil
}
