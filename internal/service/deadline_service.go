package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"task-tracker/internal/model"
	"task-tracker/internal/notify"
)

// DefaultDeadlineWindow is how far ahead a scan pass looks for due tasks.
const DefaultDeadlineWindow = 30 * time.Minute

// TaskLister reads every task across all users.
type TaskLister interface {
	FindAll(ctx context.Context) ([]model.Task, error)
}

// PassLease grants the right to run a pass. Instances sharing a lease run
// one pass between them per slot.
type PassLease interface {
	TryAcquire(ctx context.Context) (bool, error)
}

// DeadlineScanner looks for open tasks due inside (now, now+window) and
// notifies their owners. A task stays in the window for several passes and
// is notified on each of them.
type DeadlineScanner struct {
	tasks     TaskLister
	publisher notify.Publisher
	logger    *log.Logger
	loc       *time.Location
	window    time.Duration
	now       func() time.Time
	lease     PassLease

	// mu serialises passes so the task set is never scanned twice at once.
	mu sync.Mutex
}

// ScannerOption customises a DeadlineScanner.
type ScannerOption func(*DeadlineScanner)

// WithWindow sets the imminent-deadline window.
func WithWindow(d time.Duration) ScannerOption {
	return func(s *DeadlineScanner) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithLocation sets the zone due dates and times are interpreted in.
func WithLocation(loc *time.Location) ScannerOption {
	return func(s *DeadlineScanner) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLease makes every pass claim lease first; a pass whose claim fails
// is skipped.
func WithLease(lease PassLease) ScannerOption {
	return func(s *DeadlineScanner) { s.lease = lease }
}

// WithScanClock replaces time.Now.
func WithScanClock(now func() time.Time) ScannerOption {
	return func(s *DeadlineScanner) { s.now = now }
}

func NewDeadlineScanner(tasks TaskLister, publisher notify.Publisher, logger *log.Logger, opts ...ScannerOption) *DeadlineScanner {
	s := &DeadlineScanner{
		tasks:     tasks,
		publisher: publisher,
		logger:    logger,
		loc:       time.Local,
		window:    DefaultDeadlineWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanOnce runs one full pass and returns the number of events emitted.
// With a lease set, a pass runs only when the claim succeeds.
// Delivery failures are logged and do not stop the pass.
// A task with an unparsable due date or time is logged and skipped.
func (s *DeadlineScanner) ScanOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lease != nil {
		ok, err := s.lease.TryAcquire(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			s.logger.Debug("deadline scan skipped, another instance holds the slot")
			return 0, nil
		}
	}

	tasks, err := s.tasks.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load tasks: %w", err)
	}

	now := s.now().In(s.loc)
	threshold := now.Add(s.window)
	emitted := 0
	for _, task := range tasks {
		if task.Completed || !task.HasDeadline() {
			continue
		}
		due, err := task.DueAt(s.loc)
		if err != nil {
			s.logger.WithFields(log.Fields{"task_id": task.ID, "due_date": task.DueDate, "due_time": task.DueTime}).
				Warn("unable to parse task deadline, skipping")
			continue
		}
		if !due.After(now) || !due.Before(threshold) {
			continue
		}
		ev := notify.Event{
			Type:    notify.TypeDeadlineSoon,
			Message: s.message(task),
			TaskID:  task.ID,
		}
		emitted++
		if err := s.publisher.Publish(ctx, task.Username, ev); err != nil {
			s.logger.WithFields(log.Fields{"task_id": task.ID, "username": task.Username}).
				Errorf("publish deadline notification: %v", err)
		}
	}
	s.logger.WithFields(log.Fields{"tasks": len(tasks), "emitted": emitted}).Debug("deadline scan finished")
	return emitted, nil
}

func (s *DeadlineScanner) message(task model.Task) string {
	return fmt.Sprintf("Task '%s' is due in less than %d minutes! (%s at %s)",
		task.Title, int(s.window.Minutes()), task.DueDate, task.DueTime)
}
