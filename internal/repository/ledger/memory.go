package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tyrestock/stockbook/internal/domain/models"
)

var (
	_ Ledger   = (*Memory)(nil)
	_ Repairer = (*Memory)(nil)
)

// Memory is an in-process Ledger guarded by a single mutex. It backs local
// development and tests.
type Memory struct {
	mu     sync.Mutex
	stocks []models.StockRecord
	sales  []models.SaleRecord
	now    func() time.Time
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// Seed loads records as-is, bypassing the uniqueness check. It exists to
// import legacy data, which may contain duplicates.
func (m *Memory) Seed(records ...models.StockRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		m.stocks = append(m.stocks, r)
	}
}

// Find returns copies of the records matching filter.
func (m *Memory) Find(_ context.Context, filter Filter) ([]models.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.StockRecord, 0)
	for _, idx := range m.matchLocked(filter) {
		out = append(out, m.stocks[idx])
	}
	sortRecords(out)
	return out, nil
}

// FindOne returns the single record matching filter.
func (m *Memory) FindOne(_ context.Context, filter Filter) (models.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.oneLocked(filter)
	if err != nil {
		return models.StockRecord{}, err
	}
	return m.stocks[idx], nil
}

// InsertIfAbsent stores record unless its key is taken, returning the stored record.
func (m *Memory) InsertIfAbsent(_ context.Context, record models.StockRecord) (models.StockRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.oneLocked(KeyFilter(record.Key()))
	switch {
	case err == nil:
		return m.stocks[idx], false, nil
	case err != ErrNotFound:
		return models.StockRecord{}, false, err
	}

	record.ID = uuid.NewString()
	record.Version = 1
	m.stocks = append(m.stocks, record)
	return record, true, nil
}

// Upsert applies mutate to the record at key, creating it when missing.
func (m *Memory) Upsert(_ context.Context, key models.StockKey, mutate Mutation) (models.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.oneLocked(KeyFilter(key))
	if err != nil && err != ErrNotFound {
		return models.StockRecord{}, err
	}

	if err == ErrNotFound {
		next := mutate(nil).WithKey(key)
		next.ID = uuid.NewString()
		next.Version = 1
		m.stocks = append(m.stocks, next)
		return next, nil
	}

	current := m.stocks[idx]
	next := mutate(&current).WithKey(key)
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	m.stocks[idx] = next
	return next, nil
}

// CommitSale debits existing stock and appends the sale under one lock.
func (m *Memory) CommitSale(_ context.Context, sale models.SaleRecord) (models.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.oneLocked(KeyFilter(sale.StockKey()))
	if err != nil {
		return models.StockRecord{}, err
	}

	stock := m.stocks[idx]
	if stock.Quantity < sale.Quantity {
		return models.StockRecord{}, ErrInsufficientStock
	}

	stock.Quantity -= sale.Quantity
	stock.TotalAmount = stock.TotalAmount.Sub(sale.TotalAmount)
	stock.Version++
	stock.UpdatedAt = m.now()
	m.stocks[idx] = stock

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	m.sales = append(m.sales, sale)
	return stock, nil
}

// Distinct returns the sorted distinct values of field among matching records.
func (m *Memory) Distinct(_ context.Context, field Field, filter Filter) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	for _, idx := range m.matchLocked(filter) {
		r := m.stocks[idx]
		switch field {
		case FieldTyreSize:
			seen[r.TyreSize] = struct{}{}
		case FieldLocation:
			seen[r.Location] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// FindSales returns the sales matching filter.
func (m *Memory) FindSales(_ context.Context, filter models.SaleFilter) ([]models.SaleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.SaleRecord, 0)
	for _, s := range m.sales {
		if filter.Date != nil && !s.Date.Equal(*filter.Date) {
			continue
		}
		if filter.TyreSize != "" && s.TyreSize != filter.TyreSize {
			continue
		}
		if filter.Location != "" && s.Location != filter.Location {
			continue
		}
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Deduplicate keeps the first stored record of every key and drops the rest.
func (m *Memory) Deduplicate(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type dedupKey struct {
		day, tyreSize, location string
		status                  models.StockStatus
	}
	seen := make(map[dedupKey]struct{}, len(m.stocks))
	kept := m.stocks[:0]
	removed := 0
	for _, r := range m.stocks {
		key := dedupKey{day: models.FormatDay(r.Date), tyreSize: r.TyreSize, location: r.Location, status: r.Status}
		if _, dup := seen[key]; dup {
			removed++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, r)
	}
	m.stocks = kept
	return removed, nil
}

func (m *Memory) matchLocked(filter Filter) []int {
	var out []int
	for i, r := range m.stocks {
		if filter.Match(r) {
			out = append(out, i)
		}
	}
	return out
}

func (m *Memory) oneLocked(filter Filter) (int, error) {
	matches := m.matchLocked(filter)
	switch len(matches) {
	case 0:
		return -1, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return -1, ErrAmbiguousMatch
	}
}

func sortRecords(records []models.StockRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.TyreSize != b.TyreSize {
			return a.TyreSize < b.TyreSize
		}
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		return a.Status < b.Status
	})
}
