package timeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the retention sweep daily at 03:00.
const DefaultSchedule = "0 3 * * *"

// RetentionSource reports how many days of history to keep; -1 keeps
// everything.
type RetentionSource interface {
	RetentionDays() int
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Sweeper prunes expired entries on a cron schedule. The retention window is
// read on every run so settings changes apply without a restart.
type Sweeper struct {
	svc      *Service
	settings RetentionSource
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewSweeper(svc *Service, settings RetentionSource, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule: %w", err)
	}

	s := &Sweeper{
		svc:      svc,
		settings: settings,
		cron:     cron.New(cron.WithParser(cronParser)),
		logger:   logger,
	}
	s.cron.Schedule(sched, cron.FuncJob(func() { s.Sweep(context.Background()) }))
	return s, nil
}

// Sweep runs one retention pass.
func (s *Sweeper) Sweep(ctx context.Context) int {
	days := s.settings.RetentionDays()
	if days < 0 {
		return 0
	}
	deleted, err := s.svc.Prune(ctx, days)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return 0
	}
	return deleted
}

// Run starts the schedule and blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}
