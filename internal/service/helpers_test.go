package service

import (
	"context"
	"io"
	stdlog "log"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"task-tracker/internal/auth"
	"task-tracker/internal/notify"
	"task-tracker/internal/repository"
)

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB("file:"+name+"?mode=memory&cache=shared", stdlog.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type fixture struct {
	users   *repository.UserRepository
	tasks   *repository.TaskRepository
	tokens  *auth.Tokens
	userSvc *UserService
	taskSvc *TaskService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	users := repository.NewUserRepository(db)
	tasks := repository.NewTaskRepository(db)
	tokens := auth.NewTokens([]byte("test-secret"), time.Hour)
	userSvc, err := NewUserService(users, tasks, auth.NewHasher(bcrypt.MinCost), tokens, quietLogger())
	if err != nil {
		t.Fatalf("user service: %v", err)
	}
	return &fixture{
		users:   users,
		tasks:   tasks,
		tokens:  tokens,
		userSvc: userSvc,
		taskSvc: NewTaskService(tasks, users),
	}
}

func (f *fixture) register(t *testing.T, username string) {
	t.Helper()
	if _, err := f.userSvc.Register(context.Background(), RegisterInput{Username: username, Password: "pw-" + username}); err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
}

type published struct {
	username string
	event    notify.Event
}

type capturePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *capturePublisher) Publish(_ context.Context, username string, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{username: username, event: ev})
	return nil
}

func (p *capturePublisher) take() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}
