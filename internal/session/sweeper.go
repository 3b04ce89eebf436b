package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
)

// MinSweepInterval is the shortest schedule the sweeper accepts.
const MinSweepInterval = time.Minute

// Parser is a cron parser for standard 5-field cron expressions.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := Parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// ScheduleInterval estimates the typical interval between scheduled runs.
func ScheduleInterval(expr string, from time.Time) (time.Duration, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return 0, err
	}
	next := schedule.Next(from)
	return schedule.Next(next).Sub(next), nil
}

// Task is extra work run on every sweep, such as journal retention.
type Task func(ctx context.Context) error

// Sweeper runs Store.Sweep, and any extra tasks, on a cron schedule.
type Sweeper struct {
	store  *Store
	cron   *cron.Cron
	logger logr.Logger
	tasks  []Task
}

// NewSweeper validates schedule and prepares a sweeper for store.
func NewSweeper(store *Store, schedule string, logger logr.Logger, tasks ...Task) (*Sweeper, error) {
	interval, err := ScheduleInterval(schedule, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if interval < MinSweepInterval {
		return nil, fmt.Errorf("sweep schedule interval %v is less than minimum allowed %v", interval, MinSweepInterval)
	}

	s := &Sweeper{
		store:  store,
		cron:   cron.New(cron.WithParser(Parser)),
		logger: logger,
		tasks:  tasks,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("failed to schedule sweeper: %w", err)
	}
	return s, nil
}

// RunOnce sweeps idle drafts and runs the extra tasks. Task errors are
// logged; they never stop the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	expired := s.store.Sweep()
	for i, task := range s.tasks {
		if err := task(ctx); err != nil {
			s.logger.Error(err, "Sweep task failed", "task", i)
		}
	}
	return expired
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running sweep to finish.
func (s *Sweeper) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}
