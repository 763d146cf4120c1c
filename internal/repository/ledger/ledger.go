// Package ledger defines the storage contract for stock and sale records.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/tyrestock/stockbook/internal/domain/models"
)

var (
	// ErrNotFound indicates no record matched the lookup.
	ErrNotFound = errors.New("stock record not found")
	// ErrAmbiguousMatch indicates more than one record exists for a key that
	// must be unique. It points at corrupt data and is never auto-resolved.
	ErrAmbiguousMatch = errors.New("ambiguous stock match")
	// ErrInsufficientStock indicates a conditional decrement found fewer units
	// than requested.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnavailable marks transient storage failures that may be retried.
	ErrUnavailable = errors.New("storage unavailable")
)

// UnavailableError wraps a transient storage failure. It matches ErrUnavailable.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Field names a record attribute usable with Distinct.
type Field string

const (
	FieldTyreSize Field = "tyreSize"
	FieldLocation Field = "location"
)

// Filter selects stock records. Zero-valued fields match everything.
type Filter struct {
	Date     *time.Time
	TyreSize string
	Location string
	Status   models.StockStatus
}

// KeyFilter builds the filter matching exactly one key.
func KeyFilter(key models.StockKey) Filter {
	day := key.Date
	return Filter{Date: &day, TyreSize: key.TyreSize, Location: key.Location, Status: key.Status}
}

// DayFilter builds the filter matching every record of one status on one day.
func DayFilter(day time.Time, status models.StockStatus) Filter {
	return Filter{Date: &day, Status: status}
}

// Match reports whether record satisfies the filter.
func (f Filter) Match(record models.StockRecord) bool {
	if f.Date != nil && !record.Date.Equal(*f.Date) {
		return false
	}
	if f.TyreSize != "" && record.TyreSize != f.TyreSize {
		return false
	}
	if f.Location != "" && record.Location != f.Location {
		return false
	}
	if f.Status != "" && record.Status != f.Status {
		return false
	}
	return true
}

// Mutation computes the next state of a keyed record. current is nil when the
// record does not exist yet.
type Mutation func(current *models.StockRecord) models.StockRecord

// Ledger is the keyed store of stock records and sales the engine runs on.
//
// Implementations enforce at most one stock record per
// (date, tyreSize, location, status). Find returns records ordered by tyre
// size, location and status.
type Ledger interface {
	Find(ctx context.Context, filter Filter) ([]models.StockRecord, error)
	FindOne(ctx context.Context, filter Filter) (models.StockRecord, error)
	InsertIfAbsent(ctx context.Context, record models.StockRecord) (models.StockRecord, bool, error)
	Upsert(ctx context.Context, key models.StockKey, mutate Mutation) (models.StockRecord, error)
	CommitSale(ctx context.Context, sale models.SaleRecord) (models.StockRecord, error)
	Distinct(ctx context.Context, field Field, filter Filter) ([]string, error)
	FindSales(ctx context.Context, filter models.SaleFilter) ([]models.SaleRecord, error)
}

// Repairer removes duplicate stock records left behind by older writers.
type Repairer interface {
	Deduplicate(ctx context.Context) (int, error)
}
