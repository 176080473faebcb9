package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulerService wraps cron-based jobs. Jobs recover from panics and a
// run is skipped while the previous run of the same job is still going.
type SchedulerService struct {
	cron  *cron.Cron
	// adhoc tracks jobs started by RunNow.
	adhoc sync.WaitGroup
}

func NewSchedulerService(loc *time.Location, logger cron.Logger) *SchedulerService {
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// RunNow starts job once in the background, outside the schedule. Stop
// waits for it like for a scheduled run.
func (s *SchedulerService) RunNow(job func()) {
	s.adhoc.Add(1)
	go func() {
		defer s.adhoc.Done()
		job()
	}()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.adhoc.Wait()
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	// Convert to cron spec: every N seconds.
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, job)
}
