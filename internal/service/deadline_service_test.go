package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"task-tracker/internal/lease"
	"task-tracker/internal/model"
	"task-tracker/internal/notify"
)

type scanClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *scanClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *scanClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type staticTasks []model.Task

func (s staticTasks) FindAll(context.Context) ([]model.Task, error) { return s, nil }

func dueTask(id uint, owner string, due time.Time) model.Task {
	return model.Task{
		ID:       id,
		Username: owner,
		Title:    "task",
		DueDate:  due.Format(model.DueDateLayout),
		DueTime:  due.Format(model.DueTimeLayout),
	}
}

func newScanner(tasks TaskLister, pub notify.Publisher, clock *scanClock) *DeadlineScanner {
	return NewDeadlineScanner(tasks, pub, quietLogger(),
		WithLocation(time.UTC),
		WithScanClock(clock.Now),
	)
}

func TestScanNotifiesImminentTaskEveryPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "bob")
	clock := &scanClock{now: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}

	due := clock.now.Add(10 * time.Minute)
	task, err := f.taskSvc.Create(ctx, "bob", TaskInput{
		Title:   "ship release",
		DueDate: due.Format(model.DueDateLayout),
		DueTime: due.Format(model.DueTimeLayout),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	pub := &capturePublisher{}
	scanner := newScanner(f.tasks, pub, clock)

	n, err := scanner.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	events := pub.take()
	if n != 1 || len(events) != 1 {
		t.Fatalf("expected one event, got n=%d events=%d", n, len(events))
	}
	got := events[0]
	if got.username != "bob" || got.event.TaskID != task.ID || got.event.Type != notify.TypeDeadlineSoon {
		t.Fatalf("unexpected event %+v", got)
	}
	want := "Task 'ship release' is due in less than 30 minutes! (2026-10-14 at 12:10)"
	if got.event.Message != want {
		t.Fatalf("unexpected message %q", got.event.Message)
	}

	clock.Advance(time.Minute)
	if _, err := scanner.ScanOnce(ctx); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	again := pub.take()
	if len(again) != 1 || again[0].event.TaskID != task.ID {
		t.Fatalf("expected the task to be notified again, got %+v", again)
	}
}

func TestScanWindowBoundaries(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		task model.Task
		want int
	}{
		{"inside window", dueTask(1, "bob", now.Add(10*time.Minute)), 1},
		{"just before end", dueTask(2, "bob", now.Add(29*time.Minute)), 1},
		{"outside window", dueTask(3, "bob", now.Add(45*time.Minute)), 0},
		{"exactly now", dueTask(4, "bob", now), 0},
		{"exactly window end", dueTask(5, "bob", now.Add(30*time.Minute)), 0},
		{"already past", dueTask(6, "bob", now.Add(-5*time.Minute)), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &capturePublisher{}
			scanner := newScanner(staticTasks{tt.task}, pub, &scanClock{now: now})
			n, err := scanner.ScanOnce(context.Background())
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			if n != tt.want || len(pub.take()) != tt.want {
				t.Fatalf("expected %d events, got %d", tt.want, n)
			}
		})
	}
}

func TestScanSkipsCompletedAndUndated(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	completed := dueTask(1, "bob", now.Add(10*time.Minute))
	completed.Completed = true
	noTime := dueTask(2, "bob", now.Add(10*time.Minute))
	noTime.DueTime = ""
	noDate := dueTask(3, "bob", now.Add(10*time.Minute))
	noDate.DueDate = ""

	pub := &capturePublisher{}
	n, err := newScanner(staticTasks{completed, noTime, noDate}, pub, &scanClock{now: now}).ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
}

func TestScanIsolatesMalformedDeadline(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	broken := model.Task{ID: 1, Username: "bob", Title: "broken", DueDate: "tomorrow", DueTime: "noon"}
	good := dueTask(2, "carol", now.Add(5*time.Minute))
	good.DueTime = now.Add(5 * time.Minute).Format(model.DueTimeLayoutSecond)

	pub := &capturePublisher{}
	n, err := newScanner(staticTasks{broken, good}, pub, &scanClock{now: now}).ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	events := pub.take()
	if n != 1 || len(events) != 1 || events[0].username != "carol" || events[0].event.TaskID != 2 {
		t.Fatalf("expected only carol's task, got %+v", events)
	}
}

func TestScanInterpretsDeadlineInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	// 15:10 in UTC+3 is 12:10 UTC.
	task := model.Task{ID: 1, Username: "bob", Title: "t", DueDate: "2026-10-14", DueTime: "15:10"}

	pub := &capturePublisher{}
	scanner := NewDeadlineScanner(staticTasks{task}, pub, quietLogger(), WithLocation(loc), WithScanClock(func() time.Time { return now }))
	if n, _ := scanner.ScanOnce(context.Background()); n != 1 {
		t.Fatalf("expected one event, got %d", n)
	}
}

func TestScanCustomWindow(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	pub := &capturePublisher{}
	scanner := NewDeadlineScanner(staticTasks{dueTask(1, "bob", now.Add(45*time.Minute))}, pub, quietLogger(),
		WithLocation(time.UTC), WithScanClock(func() time.Time { return now }), WithWindow(time.Hour))
	if n, _ := scanner.ScanOnce(context.Background()); n != 1 {
		t.Fatalf("expected one event, got %d", n)
	}
	if msg := pub.take()[0].event.Message; msg != "Task 'task' is due in less than 60 minutes! (2026-10-14 at 12:45)" {
		t.Fatalf("unexpected message %q", msg)
	}
}

type failingTasks struct{}

func (failingTasks) FindAll(context.Context) ([]model.Task, error) { return nil, errors.New("db down") }

func TestScanStoreFailure(t *testing.T) {
	scanner := newScanner(failingTasks{}, &capturePublisher{}, &scanClock{now: time.Now()})
	if _, err := scanner.ScanOnce(context.Background()); err == nil {
		t.Fatal("expected error when tasks cannot be loaded")
	}
}

type erroringPublisher struct{ calls int }

func (p *erroringPublisher) Publish(context.Context, string, notify.Event) error {
	p.calls++
	return errors.New("relay down")
}

func TestScanContinuesAfterPublishFailure(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	pub := &erroringPublisher{}
	tasks := staticTasks{dueTask(1, "bob", now.Add(5*time.Minute)), dueTask(2, "carol", now.Add(6*time.Minute))}
	n, err := newScanner(tasks, pub, &scanClock{now: now}).ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != 2 || pub.calls != 2 {
		t.Fatalf("expected both tasks attempted, got n=%d calls=%d", n, pub.calls)
	}
}

type slowTasks struct {
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (s *slowTasks) FindAll(context.Context) ([]model.Task, error) {
	n := s.active.Add(1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	s.active.Add(-1)
	return nil, nil
}

func TestScanPassesNeverOverlap(t *testing.T) {
	tasks := &slowTasks{}
	scanner := newScanner(tasks, &capturePublisher{}, &scanClock{now: time.Now()})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = scanner.ScanOnce(context.Background())
		}()
	}
	wg.Wait()
	if got := tasks.maxSeen.Load(); got != 1 {
		t.Fatalf("expected passes to run one at a time, saw %d concurrent", got)
	}
}

type fixedLease struct {
	ok  bool
	err error
}

func (l fixedLease) TryAcquire(context.Context) (bool, error) { return l.ok, l.err }

func TestScanRespectsLease(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	tasks := staticTasks{dueTask(1, "bob", now.Add(5*time.Minute))}
	clock := &scanClock{now: now}

	pub := &capturePublisher{}
	held := NewDeadlineScanner(tasks, pub, quietLogger(), WithLocation(time.UTC), WithScanClock(clock.Now), WithLease(fixedLease{ok: false}))
	if n, err := held.ScanOnce(context.Background()); err != nil || n != 0 {
		t.Fatalf("expected skipped pass, got %d %v", n, err)
	}
	if got := pub.take(); len(got) != 0 {
		t.Fatalf("skipped pass published %d events", len(got))
	}

	broken := NewDeadlineScanner(tasks, pub, quietLogger(), WithLocation(time.UTC), WithScanClock(clock.Now), WithLease(fixedLease{err: errors.New("redis down")}))
	if _, err := broken.ScanOnce(context.Background()); err == nil {
		t.Fatal("expected lease error to fail the pass")
	}

	granted := NewDeadlineScanner(tasks, pub, quietLogger(), WithLocation(time.UTC), WithScanClock(clock.Now), WithLease(fixedLease{ok: true}))
	if n, err := granted.ScanOnce(context.Background()); err != nil || n != 1 {
		t.Fatalf("expected one event, got %d %v", n, err)
	}
}

func TestScanInstancesShareOneSlot(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	tasks := staticTasks{dueTask(1, "bob", now.Add(5*time.Minute))}
	clock := &scanClock{now: now}
	pub := &capturePublisher{}

	var scanners []*DeadlineScanner
	for i := 0; i < 3; i++ {
		scanners = append(scanners, NewDeadlineScanner(tasks, pub, quietLogger(),
			WithLocation(time.UTC),
			WithScanClock(clock.Now),
			WithLease(lease.NewRedisLease(rc, "scan-lease", lease.SlotTTL(time.Minute))),
		))
	}

	for _, s := range scanners {
		if _, err := s.ScanOnce(context.Background()); err != nil {
			t.Fatalf("scan: %v", err)
		}
	}
	if got := pub.take(); len(got) != 1 {
		t.Fatalf("expected one notification across instances, got %d", len(got))
	}

	// next slot: the lease has lapsed and exactly one instance scans again
	m.FastForward(time.Minute)
	for _, s := range scanners {
		if _, err := s.ScanOnce(context.Background()); err != nil {
			t.Fatalf("scan: %v", err)
		}
	}
	if got := pub.take(); len(got) != 1 {
		t.Fatalf("expected one notification in the next slot, got %d", len(got))
	}
}
