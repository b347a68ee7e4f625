package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

const (
	DefaultInterval = 300 * time.Second
	DefaultTimeout  = 30 * time.Second
)

// Refresher is implemented by *weerlive.Client.
type Refresher interface {
	Refresh(ctx context.Context, guarded bool) error
}

// Listener runs after every refresh cycle, successful or not.
type Listener func(ctx context.Context)

// Scheduler periodically refreshes weather data.
type Scheduler struct {
	scheduler *gocron.Scheduler
	client    Refresher
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	listeners []Listener
}

// New creates a new Scheduler. Non-positive durations fall back to the defaults.
func New(client Refresher, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		client:    client,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// OnRefresh registers l to run after each cycle.
func (s *Scheduler) OnRefresh(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start schedules the refresh job and starts the underlying scheduler. The
// first cycle runs immediately; cycles never overlap.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.runCycle)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runCycle() {
	s.logger.Debug("scheduler: running weather refresh")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	err := s.client.Refresh(ctx, true)
	cancel()
	if err != nil {
		s.logger.Error("scheduler: refresh failed", "error", err)
	}

	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	// Listeners get their own deadline; the refresh may have used up its own.
	for _, l := range listeners {
		lctx, lcancel := context.WithTimeout(context.Background(), s.timeout)
		l(lctx)
		lcancel()
	}
	s.logger.Debug("scheduler: completed weather refresh")
}
