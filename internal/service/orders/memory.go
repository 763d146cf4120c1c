package orders

import (
	"context"
	"sort"
	"sync"

	"github.com/tyrestock/stockbook/internal/domain/models"
)

// MemoryStore keeps special orders in process.
type MemoryStore struct {
	mu     sync.Mutex
	orders []models.SpecialOrder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) InsertSpecialOrder(_ context.Context, order models.SpecialOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)
	return nil
}

func (m *MemoryStore) ListSpecialOrders(_ context.Context, filter models.SpecialOrderFilter) ([]models.SpecialOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.SpecialOrder, 0)
	for _, o := range m.orders {
		if filter.Date != nil && !o.Date.Equal(*filter.Date) {
			continue
		}
		if filter.TyreSize != "" && o.TyreSize != filter.TyreSize {
			continue
		}
		if filter.Location != "" && o.Location != filter.Location {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
