package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/repository/ledger"
)

// source points at a record relative to the day being seeded.
type source struct {
	offset int
	status models.StockStatus
}

// Basis resolution. A missing record is seeded from the first source that
// exists for its tyre size and location. Closing stock is a frozen copy of the
// previous day's existing stock and ranks with it.
var (
	openSeedOrder = []source{
		{offset: -1, status: models.StatusExisting},
		{offset: -1, status: models.StatusClosing},
		{offset: -1, status: models.StatusOpen},
	}
	existingSeedOrder = []source{
		{offset: -1, status: models.StatusExisting},
		{offset: -1, status: models.StatusClosing},
		{offset: 0, status: models.StatusOpen},
		{offset: -1, status: models.StatusOpen},
	}
	// A sale never seeds from yesterday's open stock alone. That stock is
	// reconciled by a later restock.
	saleSeedOrder = []source{
		{offset: -1, status: models.StatusExisting},
		{offset: -1, status: models.StatusClosing},
		{offset: 0, status: models.StatusOpen},
	}
)

func (src source) key(day time.Time, tyreSize, location string) models.StockKey {
	return models.StockKey{
		Date:     models.Day(day).AddDate(0, 0, src.offset),
		TyreSize: tyreSize,
		Location: location,
		Status:   src.status,
	}
}

// pair identifies stock independent of day and status.
type pair struct {
	tyreSize string
	location string
}

func pairOf(r models.StockRecord) pair {
	return pair{tyreSize: r.TyreSize, location: r.Location}
}

func (p pair) key(day time.Time, status models.StockStatus) models.StockKey {
	return models.StockKey{Date: day, TyreSize: p.tyreSize, Location: p.location, Status: status}
}

// basis is the record a new record is seeded from, with where it was found.
type basis struct {
	record models.StockRecord
	from   source
}

// seed resolves the basis of one key along order.
func (s *Service) seed(ctx context.Context, key models.StockKey, order []source) (basis, bool, error) {
	for _, src := range order {
		rec, err := s.findOne(ctx, src.key(key.Date, key.TyreSize, key.Location))
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return basis{}, false, err
		}
		return basis{record: rec, from: src}, true, nil
	}
	return basis{}, false, nil
}

// seeds resolves the basis of every pair that appears in any source of order.
func (s *Service) seeds(ctx context.Context, day time.Time, order []source) (map[pair]basis, error) {
	out := make(map[pair]basis)
	for _, src := range order {
		records, err := s.byPair(ctx, models.Day(day).AddDate(0, 0, src.offset), src.status)
		if err != nil {
			return nil, err
		}
		for p, rec := range records {
			if _, ok := out[p]; !ok {
				out[p] = basis{record: rec, from: src}
			}
		}
	}
	return out, nil
}

// byPair indexes one day's records of one status. Two records for the same
// pair violate the ledger's uniqueness and are reported, not merged.
func (s *Service) byPair(ctx context.Context, day time.Time, status models.StockStatus) (map[pair]models.StockRecord, error) {
	records, err := s.find(ctx, ledger.DayFilter(day, status))
	if err != nil {
		return nil, err
	}
	out := make(map[pair]models.StockRecord, len(records))
	for _, r := range records {
		p := pairOf(r)
		if _, dup := out[p]; dup {
			return nil, fmt.Errorf("%w: %s %s at %s on %s", ledger.ErrAmbiguousMatch, status, r.TyreSize, r.Location, models.FormatDay(day))
		}
		out[p] = r
	}
	return out, nil
}
