package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	cronlib "github.com/robfig/cron/v3"
)

// ErrEntryNotFound is returned for unknown entry names.
var ErrEntryNotFound = errors.New("cron: entry not found")

// ErrDuplicateEntry is returned when a name is registered twice.
var ErrDuplicateEntry = errors.New("cron: entry already registered")

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithClock sets the clock used for ticks and schedules.
func WithClock(c clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

type entry struct {
	Entry
	schedule cronlib.Schedule
	fn       Func
}

// Scheduler fires registered entries when their schedule comes due.
type Scheduler struct {
	clock        clockwork.Clock
	logger       *slog.Logger
	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	cancel context.CancelFunc
	loop   sync.WaitGroup
	fires  sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		clock:        clockwork.NewRealClock(),
		logger:       slog.Default(),
		tickInterval: time.Second,
		entries:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds an enabled entry. Its first run is the first schedule
// time after now.
func (s *Scheduler) Register(name, schedule string, fn Func) error {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("cron: parse schedule %q for %s: %w", schedule, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
	}
	s.entries[name] = &entry{
		Entry: Entry{
			Name:      name,
			Schedule:  schedule,
			Enabled:   true,
			NextRunAt: sched.Next(s.clock.Now().UTC()),
		},
		schedule: sched,
		fn:       fn,
	}
	return nil
}

// SetEnabled enables or disables an entry.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	e.Enabled = enabled
	return nil
}

// Entries returns a snapshot of all entries sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.loop.Add(1)
	go s.tickLoop(ctx)
	s.logger.Info("cron scheduler started", slog.Duration("tick_interval", s.tickInterval))
	return nil
}

// Stop ends the tick loop and waits for running entries to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.loop.Wait()

	done := make(chan struct{})
	go func() {
		s.fires.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("cron scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: stop: %w", ctx.Err())
	}
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.loop.Done()

	ticker := s.clock.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Tick(ctx)
		}
	}
}

// Tick starts every enabled entry that is due and not already running.
// Entries run in their own goroutines.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now().UTC()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.Enabled || e.NextRunAt.After(now) {
			continue
		}
		e.NextRunAt = e.schedule.Next(now)
		if e.Running {
			s.logger.Warn("cron entry still running, skipping tick", slog.String("cron_name", e.Name))
			continue
		}
		e.Running = true
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.fires.Add(1)
		go s.fire(ctx, e, now)
	}
}

// RunNow executes an entry synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if e.Running {
		s.mu.Unlock()
		return nil
	}
	e.Running = true
	s.mu.Unlock()

	s.fires.Add(1)
	return s.fire(ctx, e, s.clock.Now().UTC())
}

func (s *Scheduler) fire(ctx context.Context, e *entry, at time.Time) error {
	defer s.fires.Done()

	start := s.clock.Now()
	err := e.fn(ctx)
	elapsed := s.clock.Since(start)

	s.mu.Lock()
	e.Running = false
	e.Runs++
	e.LastRunAt = &at
	e.LastError = ""
	if err != nil {
		e.Failures++
		e.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("cron entry failed",
			slog.String("cron_name", e.Name),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.Debug("cron entry fired",
		slog.String("cron_name", e.Name),
		slog.Duration("elapsed", elapsed),
	)
	return nil
}
