package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyrestock/stockbook/internal/apperrors"
	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/repository/ledger"
)

var worker = models.Principal{UserID: "w1", Role: models.RoleWorker}

func newTestService(store Store) *Service {
	svc := NewService(store, time.UTC, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	return svc
}

func validInput() OrderInput {
	return OrderInput{CustomerName: "Ravi", PhoneNumber: "9999", TyreSize: "205/55R16", Quantity: 2, Location: "A"}
}

func TestCreateAndList(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	order, err := svc.Create(ctx, worker, validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, "w1", order.UserID)
	assert.Equal(t, "2024-03-01", models.FormatDay(order.Date))

	day := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	list, err := svc.List(ctx, models.SpecialOrderFilter{Date: &day})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, order.ID, list[0].ID)

	other := day.AddDate(0, 0, 1)
	list, err = svc.List(ctx, models.SpecialOrderFilter{Date: &other})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(NewMemoryStore())

	tests := []struct {
		name   string
		mutate func(*OrderInput)
	}{
		{"missing customer", func(in *OrderInput) { in.CustomerName = " " }},
		{"missing phone", func(in *OrderInput) { in.PhoneNumber = "" }},
		{"missing tyre size", func(in *OrderInput) { in.TyreSize = "" }},
		{"missing location", func(in *OrderInput) { in.Location = "" }},
		{"zero quantity", func(in *OrderInput) { in.Quantity = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), worker, in)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestCreateForbidden(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	_, err := svc.Create(context.Background(), models.Principal{UserID: "x", Role: "guest"}, validInput())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

type failingStore struct{ err error }

func (f failingStore) InsertSpecialOrder(context.Context, models.SpecialOrder) error { return f.err }

func (f failingStore) ListSpecialOrders(context.Context, models.SpecialOrderFilter) ([]models.SpecialOrder, error) {
	return nil, f.err
}

func TestStoreErrors(t *testing.T) {
	svc := newTestService(failingStore{err: &ledger.UnavailableError{Op: "insert", Err: errors.New("timeout")}})
	_, err := svc.Create(context.Background(), worker, validInput())
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

	svc = newTestService(failingStore{err: errors.New("boom")})
	_, err = svc.List(context.Background(), models.SpecialOrderFilter{})
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}
