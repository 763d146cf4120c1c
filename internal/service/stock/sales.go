package stock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/apperrors"
	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/repository/ledger"
)

// SaleInput carries the parameters of RecordSale. A zero Date means today.
type SaleInput struct {
	Date         time.Time
	TyreSize     string
	Location     string
	Quantity     int
	PricePerUnit decimal.Decimal
	CustomerName string
	PhoneNumber  string
	Comment      string
}

func (in SaleInput) validate() error {
	switch {
	case strings.TrimSpace(in.TyreSize) == "":
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "tyreSize is required")
	case strings.TrimSpace(in.Location) == "":
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "location is required")
	case in.Quantity <= 0:
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be positive")
	case in.PricePerUnit.IsNegative():
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "pricePerUnit must not be negative")
	}
	return nil
}

// SaleReceipt is the committed sale and the existing stock it left behind.
type SaleReceipt struct {
	Sale  models.SaleRecord  `json:"sale"`
	Stock models.StockRecord `json:"existingStock"`
}

// RecordSale debits existing stock and records the sale as one unit of work.
func (s *Service) RecordSale(ctx context.Context, p models.Principal, in SaleInput) (SaleReceipt, error) {
	if err := authorize(p); err != nil {
		return SaleReceipt{}, err
	}
	if err := in.validate(); err != nil {
		return SaleReceipt{}, err
	}

	day := s.dayOrToday(in.Date)
	key := models.StockKey{Date: day, TyreSize: in.TyreSize, Location: in.Location, Status: models.StatusExisting}

	if err := s.ensureExisting(ctx, key); err != nil {
		return SaleReceipt{}, err
	}

	now := s.now()
	sale := models.SaleRecord{
		ID:           uuid.NewString(),
		Date:         day,
		TyreSize:     in.TyreSize,
		Location:     in.Location,
		Quantity:     in.Quantity,
		PricePerUnit: in.PricePerUnit,
		TotalAmount:  in.PricePerUnit.Mul(decimal.NewFromInt(int64(in.Quantity))),
		CustomerName: in.CustomerName,
		PhoneNumber:  in.PhoneNumber,
		Comment:      in.Comment,
		UserID:       p.UserID,
		CreatedAt:    now,
	}

	stock, err := s.ledger.CommitSale(ctx, sale)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientStock) {
			s.logger.Info("sale rejected, insufficient stock",
				zap.String("tyre_size", in.TyreSize),
				zap.String("location", in.Location),
				zap.Int("requested", in.Quantity))
		}
		return SaleReceipt{}, s.translate("record sale", err)
	}

	s.logger.Info("sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("tyre_size", sale.TyreSize),
		zap.String("location", sale.Location),
		zap.Int("quantity", sale.Quantity),
		zap.String("total_amount", sale.TotalAmount.String()),
		zap.Int("remaining", stock.Quantity))

	s.dispatch(ctx, sale, stock)
	return SaleReceipt{Sale: sale, Stock: stock}, nil
}

// ensureExisting makes sure the existing-stock record for key exists, seeding
// it along saleSeedOrder when it does not.
func (s *Service) ensureExisting(ctx context.Context, key models.StockKey) error {
	_, err := s.findOne(ctx, key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return s.translate("record sale", err)
	}

	b, found, err := s.seed(ctx, key, saleSeedOrder)
	if err != nil {
		return s.translate("record sale", err)
	}
	if !found {
		return apperrors.ErrItemNotFound
	}

	if _, _, err := s.insertIfAbsent(ctx, b.record.CarryForward(key, s.now())); err != nil {
		return s.translate("record sale", err)
	}
	return nil
}

// dispatch runs sale hooks in the background. Their failures are logged only.
func (s *Service) dispatch(ctx context.Context, sale models.SaleRecord, stock models.StockRecord) {
	if len(s.hooks) == 0 {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.hookTimeout)
		defer cancel()

		for _, hook := range s.hooks {
			if err := hook.OnSale(hookCtx, sale, stock); err != nil {
				s.logger.Warn("sale hook failed", zap.String("sale_id", sale.ID), zap.Error(err))
			}
		}
	}()
}

// ListSales returns recorded sales matching filter.
func (s *Service) ListSales(ctx context.Context, filter models.SaleFilter) ([]models.SaleRecord, error) {
	if filter.Date != nil {
		day := models.Day(*filter.Date)
		filter.Date = &day
	}
	sales, err := withRetry(ctx, s, "list sales", func() ([]models.SaleRecord, error) {
		return s.ledger.FindSales(ctx, filter)
	})
	return sales, s.translate("list sales", err)
}
