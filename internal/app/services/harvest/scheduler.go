package harvest

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/system"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

// DefaultSchedule fires the harvest at midnight UTC.
const DefaultSchedule = "@midnight"

// Scheduler triggers harvest runs on a cron schedule.
type Scheduler struct {
	service  *Service
	log      *logger.Logger
	schedule string
	timeout  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a lifecycle-managed harvest scheduler.
func NewScheduler(service *Service, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("harvest-scheduler")
	}
	return &Scheduler{
		service:  service,
		log:      log,
		schedule: DefaultSchedule,
		timeout:  30 * time.Minute,
	}
}

// WithSchedule overrides the cron expression. Call before Start.
func (s *Scheduler) WithSchedule(expr string) *Scheduler {
	if expr != "" {
		s.schedule = expr
	}
	return s
}

func (s *Scheduler) Name() string { return "harvest-scheduler" }

func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	runner := cron.New(cron.WithLocation(time.UTC))
	if _, err := runner.AddFunc(s.schedule, s.fire); err != nil {
		return err
	}
	runner.Start()

	s.cron = runner
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("harvest scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	runner := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	stopped := runner.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("harvest scheduler stopped")
	return nil
}

func (s *Scheduler) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.service.Run(ctx, time.Time{}); err != nil {
		s.log.WithError(err).Warn("scheduled harvest run failed")
	}
}
