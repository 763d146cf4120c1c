package stock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/apperrors"
	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/repository/ledger"
)

// StockInput carries the parameters of OpenDay and Restock. A zero Date means today.
type StockInput struct {
	Date         time.Time
	TyreSize     string
	Location     string
	Quantity     int
	PricePerUnit decimal.Decimal
	SSP          string
	Comment      string
}

func (in StockInput) validate() error {
	switch {
	case strings.TrimSpace(in.TyreSize) == "":
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "tyreSize is required")
	case strings.TrimSpace(in.Location) == "":
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "location is required")
	case in.Quantity < 0:
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must not be negative")
	case in.PricePerUnit.IsNegative():
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "pricePerUnit must not be negative")
	}
	return nil
}

// DayOpening is the outcome of OpenDay. Existing is nil when the day was
// seeded from a bare open-stock record and awaits a restock.
type DayOpening struct {
	Open     models.StockRecord  `json:"openStock"`
	Existing *models.StockRecord `json:"existingStock,omitempty"`
}

// OpenDay records the opening stock of a tyre size at a location.
func (s *Service) OpenDay(ctx context.Context, p models.Principal, in StockInput) (DayOpening, error) {
	if err := authorize(p); err != nil {
		return DayOpening{}, err
	}
	if err := in.validate(); err != nil {
		return DayOpening{}, err
	}

	day := s.dayOrToday(in.Date)
	openKey := models.StockKey{Date: day, TyreSize: in.TyreSize, Location: in.Location, Status: models.StatusOpen}
	now := s.now()
	added := in.PricePerUnit.Mul(decimal.NewFromInt(int64(in.Quantity)))

	prior, found, err := s.seed(ctx, openKey, openSeedOrder)
	if err != nil {
		return DayOpening{}, s.translate("open day", err)
	}

	var open models.StockRecord
	if found {
		open = prior.record.CarryForward(openKey, now)
	} else {
		open = models.StockRecord{
			Date:         day,
			TyreSize:     in.TyreSize,
			Location:     in.Location,
			Status:       models.StatusOpen,
			Quantity:     in.Quantity,
			PricePerUnit: in.PricePerUnit,
			TotalAmount:  added,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	if in.SSP != "" {
		open.SSP = in.SSP
	}
	open.Comment = in.Comment

	stored, created, err := s.insertIfAbsent(ctx, open)
	if err != nil {
		return DayOpening{}, s.translate("open day", err)
	}
	if !created {
		return DayOpening{}, apperrors.ErrAlreadyOpen
	}

	if found && prior.from.status == models.StatusOpen {
		s.logger.Info("day opened from previous open stock",
			zap.String("tyre_size", in.TyreSize),
			zap.String("location", in.Location),
			zap.Int("quantity", stored.Quantity))
		return DayOpening{Open: stored}, nil
	}

	existingKey := openKey.WithStatus(models.StatusExisting)
	existing, err := withRetry(ctx, s, "open day", func() (models.StockRecord, error) {
		return s.ledger.Upsert(ctx, existingKey, func(current *models.StockRecord) models.StockRecord {
			switch {
			case current == nil:
				next := stored.CarryForward(existingKey, now)
				if found {
					next.Quantity += in.Quantity
					next.TotalAmount = next.TotalAmount.Add(added)
				}
				next.PricePerUnit = in.PricePerUnit
				return next
			case !found:
				// Already materialized from the open stock written above.
				return *current
			default:
				next := *current
				next.Quantity += in.Quantity
				next.TotalAmount = next.TotalAmount.Add(added)
				next.PricePerUnit = in.PricePerUnit
				next.UpdatedAt = now
				return next
			}
		})
	})
	if err != nil {
		return DayOpening{}, s.translate("open day", err)
	}

	s.logger.Info("day opened",
		zap.String("date", models.FormatDay(day)),
		zap.String("tyre_size", in.TyreSize),
		zap.String("location", in.Location),
		zap.Int("open_quantity", stored.Quantity),
		zap.Int("existing_quantity", existing.Quantity))

	return DayOpening{Open: stored, Existing: &existing}, nil
}

// Restock adds units to the day's existing stock. The day must have been opened.
func (s *Service) Restock(ctx context.Context, p models.Principal, in StockInput) (models.StockRecord, error) {
	if err := authorize(p); err != nil {
		return models.StockRecord{}, err
	}
	if err := in.validate(); err != nil {
		return models.StockRecord{}, err
	}
	if in.Quantity == 0 {
		return models.StockRecord{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be positive")
	}

	day := s.dayOrToday(in.Date)
	openKey := models.StockKey{Date: day, TyreSize: in.TyreSize, Location: in.Location, Status: models.StatusOpen}

	open, err := s.findOne(ctx, openKey)
	if errors.Is(err, ledger.ErrNotFound) {
		return models.StockRecord{}, apperrors.WithMessage(apperrors.ErrItemNotFound, "Open stock not found for this tyreSize and date")
	}
	if err != nil {
		return models.StockRecord{}, s.translate("restock", err)
	}

	now := s.now()
	added := in.PricePerUnit.Mul(decimal.NewFromInt(int64(in.Quantity)))
	existingKey := openKey.WithStatus(models.StatusExisting)

	existing, err := withRetry(ctx, s, "restock", func() (models.StockRecord, error) {
		return s.ledger.Upsert(ctx, existingKey, func(current *models.StockRecord) models.StockRecord {
			var next models.StockRecord
			if current == nil {
				next = open.CarryForward(existingKey, now)
			} else {
				next = *current
			}
			next.Quantity += in.Quantity
			next.TotalAmount = next.TotalAmount.Add(added)
			next.PricePerUnit = in.PricePerUnit
			if in.SSP != "" {
				next.SSP = in.SSP
			}
			next.UpdatedAt = now
			return next
		})
	})
	if err != nil {
		return models.StockRecord{}, s.translate("restock", err)
	}

	s.logger.Info("stock restocked",
		zap.String("tyre_size", in.TyreSize),
		zap.String("location", in.Location),
		zap.Int("added", in.Quantity),
		zap.Int("quantity", existing.Quantity))
	return existing, nil
}

// GetOpenStock returns the day's open stock, first rolling forward every pair
// that has a basis on the previous day but no open stock yet.
func (s *Service) GetOpenStock(ctx context.Context, day time.Time) ([]models.StockRecord, error) {
	day = s.dayOrToday(day)
	if err := s.materialize(ctx, day, models.StatusOpen, openSeedOrder); err != nil {
		return nil, s.translate("get open stock", err)
	}
	records, err := s.find(ctx, ledger.DayFilter(day, models.StatusOpen))
	return records, s.translate("get open stock", err)
}

// GetExistingStock returns the day's sellable stock, first materializing it for
// every pair that has a basis but no existing stock yet.
func (s *Service) GetExistingStock(ctx context.Context, day time.Time) ([]models.StockRecord, error) {
	day = s.dayOrToday(day)
	if err := s.materialize(ctx, day, models.StatusExisting, existingSeedOrder); err != nil {
		return nil, s.translate("get existing stock", err)
	}
	records, err := s.find(ctx, ledger.DayFilter(day, models.StatusExisting))
	return records, s.translate("get existing stock", err)
}

func (s *Service) materialize(ctx context.Context, day time.Time, status models.StockStatus, order []source) error {
	current, err := s.byPair(ctx, day, status)
	if err != nil {
		return err
	}
	bases, err := s.seeds(ctx, day, order)
	if err != nil {
		return err
	}

	now := s.now()
	for p, b := range bases {
		if _, ok := current[p]; ok {
			continue
		}
		rec := b.record.CarryForward(p.key(day, status), now)
		if _, created, err := s.insertIfAbsent(ctx, rec); err != nil {
			return err
		} else if created {
			s.logger.Debug("stock rolled forward",
				zap.String("status", string(status)),
				zap.String("date", models.FormatDay(day)),
				zap.String("tyre_size", p.tyreSize),
				zap.String("location", p.location),
				zap.String("from", string(b.from.status)),
				zap.Int("quantity", rec.Quantity))
		}
	}
	return nil
}

// ComputeClosingStock freezes the previous day's existing stock, or its open
// stock where nothing was sold or restocked, into closing-stock records dated
// to that previous day. Running it again adds nothing.
func (s *Service) ComputeClosingStock(ctx context.Context, day time.Time) ([]models.StockRecord, error) {
	prev := models.PreviousDay(s.dayOrToday(day))

	existing, err := s.byPair(ctx, prev, models.StatusExisting)
	if err != nil {
		return nil, s.translate("compute closing stock", err)
	}
	open, err := s.byPair(ctx, prev, models.StatusOpen)
	if err != nil {
		return nil, s.translate("compute closing stock", err)
	}
	for p, rec := range open {
		if _, ok := existing[p]; !ok {
			existing[p] = rec
		}
	}

	now := s.now()
	created := 0
	for p, rec := range existing {
		closing := rec.CarryForward(p.key(prev, models.StatusClosing), now)
		_, ok, err := s.insertIfAbsent(ctx, closing)
		if err != nil {
			return nil, s.translate("compute closing stock", err)
		}
		if ok {
			created++
		}
	}

	s.logger.Info("closing stock computed", zap.String("date", models.FormatDay(prev)), zap.Int("created", created))

	records, err := s.find(ctx, ledger.DayFilter(prev, models.StatusClosing))
	return records, s.translate("compute closing stock", err)
}

// ListClosingStock returns the closing-stock snapshot recorded for day.
func (s *Service) ListClosingStock(ctx context.Context, day time.Time) ([]models.StockRecord, error) {
	records, err := s.find(ctx, ledger.DayFilter(s.dayOrToday(day), models.StatusClosing))
	return records, s.translate("list closing stock", err)
}

// StockKeys lists the tyre sizes and locations holding records of status on day.
type StockKeys struct {
	TyreSizes []string `json:"tyreSizes"`
	Locations []string `json:"locations"`
}

// ListStockKeys enumerates which tyre sizes and locations have records. An
// empty status matches every status.
func (s *Service) ListStockKeys(ctx context.Context, day time.Time, status models.StockStatus) (StockKeys, error) {
	if status != "" && !status.Valid() {
		return StockKeys{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown status "+string(status))
	}
	filter := ledger.DayFilter(s.dayOrToday(day), status)

	distinct := func(field ledger.Field) ([]string, error) {
		return withRetry(ctx, s, "distinct", func() ([]string, error) {
			return s.ledger.Distinct(ctx, field, filter)
		})
	}

	sizes, err := distinct(ledger.FieldTyreSize)
	if err != nil {
		return StockKeys{}, s.translate("list stock keys", err)
	}
	locations, err := distinct(ledger.FieldLocation)
	if err != nil {
		return StockKeys{}, s.translate("list stock keys", err)
	}
	return StockKeys{TyreSizes: sizes, Locations: locations}, nil
}
