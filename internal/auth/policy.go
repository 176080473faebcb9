package auth

import (
	"errors"

	"task-tracker/internal/model"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
)

// Action names an operation subject to authorization.
type Action string

const (
	ActionTaskCreate Action = "task.create"
	ActionTaskRead   Action = "task.read"
	ActionTaskUpdate Action = "task.update"
	ActionTaskDelete Action = "task.delete"
	ActionUserList   Action = "user.list"
	ActionUserDelete Action = "user.delete"
)

// Identity is the caller as far as authorization cares. The zero value is anonymous.
type Identity struct {
	Username string
	Role     string
}

// Anonymous reports whether no user is attached.
func (i Identity) Anonymous() bool {
	return i.Username == ""
}

// Resource is the object an action targets.
type Resource struct {
	Owner string
}

// Authorize decides whether identity may perform action on res.
//
// Every action requires an authenticated caller. Task actions on a concrete
// resource require the caller to own it; with a nil resource only the
// authentication check applies. User administration requires the ADMIN role.
func Authorize(identity Identity, action Action, res *Resource) error {
	if identity.Anonymous() {
		return ErrUnauthenticated
	}
	switch action {
	case ActionTaskCreate:
		return nil
	case ActionTaskRead, ActionTaskUpdate, ActionTaskDelete:
		if res != nil && res.Owner != identity.Username {
			return ErrForbidden
		}
		return nil
	case ActionUserList, ActionUserDelete:
		if identity.Role != model.RoleAdmin {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}
