package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"task-tracker/internal/auth"
	"task-tracker/internal/model"
	"task-tracker/internal/repository"
)

const maxUsernameLen = 64

// UserStore is the credential store the service relies on.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, user *model.User) error
	FindAll(ctx context.Context) ([]model.User, error)
	DeleteByID(ctx context.Context, id uint) error
}

// TaskPurger removes every task of a user.
type TaskPurger interface {
	DeleteAllByOwner(ctx context.Context, username string) error
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// TokenIssuer issues bearer tokens.
type TokenIssuer interface {
	Issue(username string) (string, time.Time, error)
}

// RegisterInput is the data a new account is created from.
type RegisterInput struct {
	Username string
	Password string
	Email    string
}

// AuthResult is handed back after a successful registration or login.
type AuthResult struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// AdminSeed describes the administrator created at bootstrap.
type AdminSeed struct {
	Username string
	Password string
	Email    string
}

// UserService handles registration, login and user administration.
type UserService struct {
	users  UserStore
	tasks  TaskPurger
	hasher PasswordHasher
	tokens TokenIssuer
	logger *log.Logger

	// dummyHash is compared against on unknown usernames so a failed login
	// costs the same whichever half of the credentials was wrong.
	dummyHash string
}

func NewUserService(users UserStore, tasks TaskPurger, hasher PasswordHasher, tokens TokenIssuer, logger *log.Logger) (*UserService, error) {
	dummy, err := hasher.Hash("dummy-password")
	if err != nil {
		return nil, err
	}
	return &UserService{
		users:     users,
		tasks:     tasks,
		hasher:    hasher,
		tokens:    tokens,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// Register creates a USER account and signs the caller in.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	user, err := s.create(ctx, in, model.RoleUser)
	if err != nil {
		return AuthResult{}, err
	}
	s.logger.WithField("username", user.Username).Info("user registered")
	return s.issue(user.Username)
}

// Login checks the credentials and issues a token. Unknown usernames and
// wrong passwords are reported with the same error.
func (s *UserService) Login(ctx context.Context, username, password string) (AuthResult, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.Verify(password, s.dummyHash)
		return AuthResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	return s.issue(user.Username)
}

// SeedAdmin creates the administrator unless an account with that username
// already exists. It reports whether an account was created.
func (s *UserService) SeedAdmin(ctx context.Context, seed AdminSeed) (bool, error) {
	exists, err := s.users.ExistsByUsername(ctx, seed.Username)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	in := RegisterInput{Username: seed.Username, Password: seed.Password, Email: seed.Email}
	if _, err := s.create(ctx, in, model.RoleAdmin); err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	s.logger.WithField("username", seed.Username).Info("administrator seeded")
	return true, nil
}

// Identity resolves the role of an authenticated username. An empty or
// unknown username yields the anonymous identity.
func (s *UserService) Identity(ctx context.Context, username string) (auth.Identity, error) {
	return resolveIdentity(ctx, s.users, username)
}

// ListUsers returns every account. Admin only.
func (s *UserService) ListUsers(ctx context.Context, caller string) ([]model.User, error) {
	identity, err := s.Identity(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := policyError(auth.Authorize(identity, auth.ActionUserList, nil)); err != nil {
		return nil, err
	}
	return s.users.FindAll(ctx)
}

// DeleteUser removes the account with id together with its tasks. Admin only.
func (s *UserService) DeleteUser(ctx context.Context, caller string, id uint) error {
	identity, err := s.Identity(ctx, caller)
	if err != nil {
		return err
	}
	if err := policyError(auth.Authorize(identity, auth.ActionUserDelete, nil)); err != nil {
		return err
	}
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := s.tasks.DeleteAllByOwner(ctx, user.Username); err != nil {
		return err
	}
	if err := s.users.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{"username": user.Username, "by": identity.Username}).Info("user deleted")
	return nil
}

func (s *UserService) create(ctx context.Context, in RegisterInput, role string) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLen {
		return nil, invalidInput("username must be between 1 and 64 characters")
	}
	if in.Password == "" {
		return nil, invalidInput("password is required")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, invalidInput("email is not valid")
		}
	}

	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameTaken
	}
	if email != "" {
		exists, err := s.users.ExistsByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrEmailTaken
		}
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, invalidInput("password is too long")
	}
	user := &model.User{Username: username, PasswordHash: digest, Role: role}
	if email != "" {
		user.Email = &email
	}
	err = s.users.Save(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		// another registration won the race after the checks above
		return nil, s.conflict(ctx, username)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// conflict tells which unique field a rejected insert collided on.
func (s *UserService) conflict(ctx context.Context, username string) error {
	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return err
	}
	if exists {
		return ErrUsernameTaken
	}
	return ErrEmailTaken
}

func (s *UserService) issue(username string) (AuthResult, error) {
	token, exp, err := s.tokens.Issue(username)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{Token: token, Username: username, ExpiresAt: exp}, nil
}
