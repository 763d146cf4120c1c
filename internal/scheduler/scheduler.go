package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/domain/models"
)

const jobTimeout = 2 * time.Minute

// StockRoller is the part of the stock service the nightly job drives.
type StockRoller interface {
	Today() time.Time
	ComputeClosingStock(ctx context.Context, day time.Time) ([]models.StockRecord, error)
	GetOpenStock(ctx context.Context, day time.Time) ([]models.StockRecord, error)
	GetExistingStock(ctx context.Context, day time.Time) ([]models.StockRecord, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	stock    StockRoller
	schedule string
	logger   *zap.Logger
}

// NewScheduler creates a scheduler that runs the nightly rollover on schedule,
// a standard five-field cron expression evaluated in location.
func NewScheduler(schedule string, location *time.Location, stock StockRoller, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(location)),
		stock:    stock,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.schedule))

	if _, err := s.cron.AddFunc(s.schedule, s.runRollover); err != nil {
		return fmt.Errorf("schedule nightly rollover %q: %w", s.schedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runRollover() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.Rollover(ctx); err != nil {
		s.logger.Error("nightly rollover failed", zap.Error(err))
	}
}

// Rollover snapshots yesterday's closing stock and materializes today's open
// and existing stock so the day starts without waiting for the first request.
func (s *Scheduler) Rollover(ctx context.Context) error {
	today := s.stock.Today()
	s.logger.Info("running nightly rollover", zap.String("date", models.FormatDay(today)))

	closing, err := s.stock.ComputeClosingStock(ctx, today)
	if err != nil {
		return fmt.Errorf("compute closing stock: %w", err)
	}
	open, err := s.stock.GetOpenStock(ctx, today)
	if err != nil {
		return fmt.Errorf("roll open stock: %w", err)
	}
	existing, err := s.stock.GetExistingStock(ctx, today)
	if err != nil {
		return fmt.Errorf("roll existing stock: %w", err)
	}

	s.logger.Info("nightly rollover complete",
		zap.Int("closing", len(closing)),
		zap.Int("open", len(open)),
		zap.Int("existing", len(existing)))
	return nil
}
