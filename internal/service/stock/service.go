// Package stock implements the daily stock lifecycle: opening a day, restocking,
// selling against existing stock, rolling stock forward and closing the day.
package stock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/apperrors"
	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/repository/ledger"
)

const (
	defaultRetries     = 3
	defaultHookTimeout = 10 * time.Second
	retryBackoff       = 50 * time.Millisecond
)

// SaleHook observes committed sales. Hooks run after the sale is durable and
// their failures never undo it.
type SaleHook interface {
	OnSale(ctx context.Context, sale models.SaleRecord, stock models.StockRecord) error
}

// Service is the reconciliation engine over a stock ledger.
type Service struct {
	ledger      ledger.Ledger
	hooks       []SaleHook
	logger      *zap.Logger
	now         func() time.Time
	location    *time.Location
	retries     int
	hookTimeout time.Duration
	inflight    sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

// WithSaleHooks registers observers notified after every committed sale.
func WithSaleHooks(hooks ...SaleHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, hooks...) }
}

// WithRetries sets how many times a transient storage failure is attempted.
func WithRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retries = n
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone that decides which calendar day "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithHookTimeout bounds each round of sale hooks.
func WithHookTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.hookTimeout = d
		}
	}
}

// NewService wires a new stock service instance.
func NewService(l ledger.Ledger, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		ledger:      l,
		logger:      logger,
		now:         time.Now,
		location:    time.UTC,
		retries:     defaultRetries,
		hookTimeout: defaultHookTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar day in the configured timezone.
func (s *Service) Today() time.Time {
	return models.Day(s.now().In(s.location))
}

// Close waits for in-flight sale hooks to finish.
func (s *Service) Close() {
	s.inflight.Wait()
}

func (s *Service) dayOrToday(day time.Time) time.Time {
	if day.IsZero() {
		return s.Today()
	}
	return models.Day(day)
}

// withRetry runs fn until it succeeds, fails with a non-transient error or
// runs out of attempts. Only idempotent ledger calls go through here.
func withRetry[T any](ctx context.Context, s *Service, op string, fn func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 1; attempt <= s.retries; attempt++ {
		out, err = fn()
		if err == nil || !errors.Is(err, ledger.ErrUnavailable) {
			return out, err
		}
		s.logger.Warn("storage unavailable, retrying", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		if attempt == s.retries {
			break
		}
		select {
		case <-ctx.Done():
			return out, err
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	return out, err
}

func (s *Service) find(ctx context.Context, filter ledger.Filter) ([]models.StockRecord, error) {
	return withRetry(ctx, s, "find", func() ([]models.StockRecord, error) {
		return s.ledger.Find(ctx, filter)
	})
}

func (s *Service) findOne(ctx context.Context, key models.StockKey) (models.StockRecord, error) {
	return withRetry(ctx, s, "find one", func() (models.StockRecord, error) {
		return s.ledger.FindOne(ctx, ledger.KeyFilter(key))
	})
}

type insertResult struct {
	record  models.StockRecord
	created bool
}

func (s *Service) insertIfAbsent(ctx context.Context, record models.StockRecord) (models.StockRecord, bool, error) {
	res, err := withRetry(ctx, s, "insert if absent", func() (insertResult, error) {
		rec, created, err := s.ledger.InsertIfAbsent(ctx, record)
		return insertResult{record: rec, created: created}, err
	})
	return res.record, res.created, err
}

// translate maps ledger failures onto the application error taxonomy.
func (s *Service) translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, ledger.ErrAmbiguousMatch):
		s.logger.Error("duplicate stock records detected", zap.String("op", op), zap.Error(err))
		return apperrors.Wrap(apperrors.ErrAmbiguousMatch, fmt.Errorf("%s: %w", op, err))
	case errors.Is(err, ledger.ErrInsufficientStock):
		return apperrors.Wrap(apperrors.ErrInsufficientStock, err)
	case errors.Is(err, ledger.ErrNotFound):
		return apperrors.Wrap(apperrors.ErrItemNotFound, err)
	case errors.Is(err, ledger.ErrUnavailable):
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, fmt.Errorf("%s: %w", op, err))
	default:
		s.logger.Error("stock operation failed", zap.String("op", op), zap.Error(err))
		return apperrors.Wrap(apperrors.ErrInternal, fmt.Errorf("%s: %w", op, err))
	}
}

func authorize(p models.Principal) error {
	if !p.HasRole(models.RoleOwner, models.RoleWorker) {
		return apperrors.ErrForbidden
	}
	return nil
}
