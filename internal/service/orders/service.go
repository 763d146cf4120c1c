// Package orders records customer requests for tyres that are not in stock.
package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/apperrors"
	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/repository/ledger"
)

// Store persists special orders.
type Store interface {
	InsertSpecialOrder(ctx context.Context, order models.SpecialOrder) error
	ListSpecialOrders(ctx context.Context, filter models.SpecialOrderFilter) ([]models.SpecialOrder, error)
}

// Service creates and lists special orders.
type Service struct {
	store    Store
	logger   *zap.Logger
	now      func() time.Time
	location *time.Location
}

// NewService builds the special orders service. A nil location means UTC.
func NewService(store Store, location *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &Service{store: store, logger: logger, now: time.Now, location: location}
}

// OrderInput carries the fields of a new special order. A zero Date means today.
type OrderInput struct {
	Date         time.Time
	CustomerName string
	PhoneNumber  string
	TyreSize     string
	Quantity     int
	Location     string
	Comment      string
}

func (in OrderInput) validate() error {
	required := []struct{ name, value string }{
		{"customerName", in.CustomerName},
		{"phoneNumber", in.PhoneNumber},
		{"tyreSize", in.TyreSize},
		{"location", in.Location},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, f.name+" is required")
		}
	}
	if in.Quantity <= 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be positive")
	}
	return nil
}

// Create records a special order on behalf of p.
func (s *Service) Create(ctx context.Context, p models.Principal, in OrderInput) (models.SpecialOrder, error) {
	if !p.HasRole(models.RoleOwner, models.RoleWorker) {
		return models.SpecialOrder{}, apperrors.ErrForbidden
	}
	if err := in.validate(); err != nil {
		return models.SpecialOrder{}, err
	}

	now := s.now()
	day := models.Day(in.Date)
	if in.Date.IsZero() {
		day = models.Day(now.In(s.location))
	}

	order := models.SpecialOrder{
		ID:           uuid.NewString(),
		Date:         day,
		CustomerName: strings.TrimSpace(in.CustomerName),
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		TyreSize:     in.TyreSize,
		Quantity:     in.Quantity,
		Location:     in.Location,
		Comment:      in.Comment,
		UserID:       p.UserID,
		CreatedAt:    now,
	}
	if err := s.store.InsertSpecialOrder(ctx, order); err != nil {
		return models.SpecialOrder{}, storeError(err)
	}

	s.logger.Info("special order created",
		zap.String("order_id", order.ID),
		zap.String("tyre_size", order.TyreSize),
		zap.Int("quantity", order.Quantity))
	return order, nil
}

// List returns special orders matching filter.
func (s *Service) List(ctx context.Context, filter models.SpecialOrderFilter) ([]models.SpecialOrder, error) {
	if filter.Date != nil {
		day := models.Day(*filter.Date)
		filter.Date = &day
	}
	out, err := s.store.ListSpecialOrders(ctx, filter)
	if err != nil {
		return nil, storeError(err)
	}
	return out, nil
}

func storeError(err error) error {
	if errors.Is(err, ledger.ErrUnavailable) {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, err)
	}
	return apperrors.Wrap(apperrors.ErrInternal, err)
}
