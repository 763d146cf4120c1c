package stock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyrestock/stockbook/internal/apperrors"
	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/repository/ledger"
)

var (
	day1   = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2   = day1.AddDate(0, 0, 1)
	owner  = models.Principal{UserID: "owner-1", Role: models.RoleOwner}
	worker = models.Principal{UserID: "worker-1", Role: models.RoleWorker}
)

const (
	size = "185/65R15"
	loc  = "A"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *ledger.Memory) {
	t.Helper()
	mem := ledger.NewMemory()
	clock := func() time.Time { return day1.Add(10 * time.Hour) }
	svc := NewService(mem, nil, append([]Option{WithClock(clock)}, opts...)...)
	t.Cleanup(svc.Close)
	return svc, mem
}

func openInput(day time.Time, qty int, price int64) StockInput {
	return StockInput{Date: day, TyreSize: size, Location: loc, Quantity: qty, PricePerUnit: decimal.NewFromInt(price)}
}

func saleInput(day time.Time, qty int, price int64) SaleInput {
	return SaleInput{Date: day, TyreSize: size, Location: loc, Quantity: qty, PricePerUnit: decimal.NewFromInt(price), CustomerName: "Ravi"}
}

func mustFindOne(t *testing.T, mem *ledger.Memory, day time.Time, status models.StockStatus) models.StockRecord {
	t.Helper()
	rec, err := mem.FindOne(context.Background(), ledger.KeyFilter(models.StockKey{Date: day, TyreSize: size, Location: loc, Status: status}))
	require.NoError(t, err)
	return rec
}

func countRecords(t *testing.T, mem *ledger.Memory, day time.Time, status models.StockStatus) int {
	t.Helper()
	recs, err := mem.Find(context.Background(), ledger.DayFilter(day, status))
	require.NoError(t, err)
	return len(recs)
}

func TestDayLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	opening, err := svc.OpenDay(ctx, owner, openInput(day1, 10, 100))
	require.NoError(t, err)
	require.NotNil(t, opening.Existing)
	assert.Equal(t, 10, opening.Open.Quantity)
	assert.Equal(t, 10, opening.Existing.Quantity)

	receipt, err := svc.RecordSale(ctx, worker, saleInput(day1, 3, 100))
	require.NoError(t, err)
	assert.Equal(t, 7, receipt.Stock.Quantity)
	assert.True(t, decimal.NewFromInt(300).Equal(receipt.Sale.TotalAmount))
	assert.Equal(t, "worker-1", receipt.Sale.UserID)

	// Open stock is never decremented by sales.
	assert.Equal(t, 10, mustFindOne(t, mem, day1, models.StatusOpen).Quantity)

	existing, err := svc.GetExistingStock(ctx, day2)
	require.NoError(t, err)
	require.Len(t, existing, 1)
	assert.Equal(t, 7, existing[0].Quantity)
	assert.True(t, decimal.NewFromInt(700).Equal(existing[0].TotalAmount))
}

func TestOpenDayCarriesPreviousExistingStock(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.OpenDay(ctx, owner, openInput(day1, 10, 100))
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, owner, saleInput(day1, 4, 120))
	require.NoError(t, err)

	opening, err := svc.OpenDay(ctx, owner, openInput(day2, 5, 100))
	require.NoError(t, err)
	require.NotNil(t, opening.Existing)

	assert.Equal(t, 6, opening.Open.Quantity)
	assert.Equal(t, 11, opening.Existing.Quantity)
	// 1000 - 480 carried, plus 500 added.
	assert.True(t, decimal.NewFromInt(520).Equal(opening.Open.TotalAmount))
	assert.True(t, decimal.NewFromInt(1020).Equal(opening.Existing.TotalAmount))
}

func TestOpenDayAddsOnTopOfMaterializedExisting(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	_, err := svc.OpenDay(ctx, owner, openInput(day1, 10, 100))
	require.NoError(t, err)

	_, err = svc.GetExistingStock(ctx, day2)
	require.NoError(t, err)
	assert.Equal(t, 10, mustFindOne(t, mem, day2, models.StatusExisting).Quantity)

	opening, err := svc.OpenDay(ctx, owner, openInput(day2, 2, 100))
	require.NoError(t, err)
	require.NotNil(t, opening.Existing)
	assert.Equal(t, 12, opening.Existing.Quantity)
	assert.Equal(t, 1, countRecords(t, mem, day2, models.StatusExisting))
}

func TestOpenDaySeededFromPreviousOpenStockOnly(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	mem.Seed(models.StockRecord{
		Date: day1, TyreSize: size, Location: loc, Status: models.StatusOpen,
		Quantity: 8, PricePerUnit: decimal.NewFromInt(90), TotalAmount: decimal.NewFromInt(720),
	})

	opening, err := svc.OpenDay(ctx, owner, openInput(day2, 5, 100))
	require.NoError(t, err)

	assert.Nil(t, opening.Existing)
	assert.Equal(t, 8, opening.Open.Quantity)
	assert.Equal(t, 0, countRecords(t, mem, day2, models.StatusExisting))
}

func TestOpenDayRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	_, err := svc.OpenDay(ctx, owner, openInput(day1, 10, 100))
	require.NoError(t, err)

	_, err = svc.OpenDay(ctx, owner, openInput(day1, 10, 100))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyOpen)
	assert.Equal(t, 1, countRecords(t, mem, day1, models.StatusOpen))
	assert.Equal(t, 10, mustFindOne(t, mem, day1, models.StatusExisting).Quantity)
}

func TestOpenDayValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tests := []struct {
		name    string
		p       models.Principal
		in      StockInput
		wantErr *apperrors.AppError
	}{
		{name: "unknown_role", p: models.Principal{UserID: "x", Role: "guest"}, in: openInput(day1, 1, 1), wantErr: apperrors.ErrForbidden},
		{name: "missing_tyre_size", p: owner, in: StockInput{Date: day1, Location: loc, Quantity: 1}, wantErr: apperrors.ErrInvalidInput},
		{name: "missing_location", p: owner, in: StockInput{Date: day1, TyreSize: size, Quantity: 1}, wantErr: apperrors.ErrInvalidInput},
		{name: "negative_quantity", p: owner, in: openInput(day1, -1, 1), wantErr: apperrors.ErrInvalidInput},
		{name: "negative_price", p: owner, in: openInput(day1, 1, -1), wantErr: apperrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.OpenDay(ctx, tt.p, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRecordSaleRejectsOversell(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	_, err := svc.OpenDay(ctx, owner, openInput(day1, 2, 100))
	require.NoError(t, err)

	_, err = svc.RecordSale(ctx, owner, saleInput(day1, 3, 100))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	stock := mustFindOne(t, mem, day1, models.StatusExisting)
	assert.Equal(t, 2, stock.Quantity)
	assert.True(t, decimal.NewFromInt(200).Equal(stock.TotalAmount))

	sales, err := svc.ListSales(ctx, models.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestRecordSaleResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("item_not_found", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.RecordSale(ctx, owner, saleInput(day1, 1, 100))
		assert.ErrorIs(t, err, apperrors.ErrItemNotFound)
	})

	t.Run("seeds_from_yesterday_existing", func(t *testing.T) {
		svc, mem := newTestService(t)
		mem.Seed(models.StockRecord{Date: day1, TyreSize: size, Location: loc, Status: models.StatusExisting, Quantity: 6})

		receipt, err := svc.RecordSale(ctx, owner, saleInput(day2, 2, 100))
		require.NoError(t, err)
		assert.Equal(t, 4, receipt.Stock.Quantity)
		assert.Equal(t, 6, mustFindOne(t, mem, day1, models.StatusExisting).Quantity)
	})

	t.Run("seeds_from_yesterday_closing", func(t *testing.T) {
		svc, mem := newTestService(t)
		mem.Seed(models.StockRecord{Date: day1, TyreSize: size, Location: loc, Status: models.StatusClosing, Quantity: 3})

		receipt, err := svc.RecordSale(ctx, owner, saleInput(day2, 1, 100))
		require.NoError(t, err)
		assert.Equal(t, 2, receipt.Stock.Quantity)
		assert.Equal(t, 3, mustFindOne(t, mem, day1, models.StatusClosing).Quantity)
	})

	t.Run("yesterday_open_only_is_not_sellable", func(t *testing.T) {
		svc, mem := newTestService(t)
		mem.Seed(models.StockRecord{Date: day1, TyreSize: size, Location: loc, Status: models.StatusOpen, Quantity: 5})

		_, err := svc.RecordSale(ctx, owner, saleInput(day2, 2, 100))
		assert.ErrorIs(t, err, apperrors.ErrItemNotFound)
		assert.Equal(t, 0, countRecords(t, mem, day2, models.StatusExisting))

		sales, err := svc.ListSales(ctx, models.SaleFilter{})
		require.NoError(t, err)
		assert.Empty(t, sales)
	})

	t.Run("seeds_from_today_open", func(t *testing.T) {
		svc, mem := newTestService(t)
		mem.Seed(models.StockRecord{Date: day2, TyreSize: size, Location: loc, Status: models.StatusOpen, Quantity: 5})

		receipt, err := svc.RecordSale(ctx, owner, saleInput(day2, 5, 100))
		require.NoError(t, err)
		assert.Equal(t, 0, receipt.Stock.Quantity)
		assert.Equal(t, 5, mustFindOne(t, mem, day2, models.StatusOpen).Quantity)
	})

	t.Run("non_positive_quantity", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.RecordSale(ctx, owner, saleInput(day1, 0, 100))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("forbidden", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.RecordSale(ctx, models.Principal{}, saleInput(day1, 1, 100))
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})
}

func TestRecordSaleConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	const initialStock, totalRequests = 20, 50
	_, err := svc.OpenDay(ctx, owner, openInput(day1, initialStock, 100))
	require.NoError(t, err)

	var successCount, insufficientCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordSale(ctx, worker, saleInput(day1, 1, 100))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, apperrors.ErrInsufficientStock):
				insufficientCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())
	assert.Equal(t, int32(totalRequests-initialStock), insufficientCount.Load())
	assert.Equal(t, 0, mustFindOne(t, mem, day1, models.StatusExisting).Quantity)

	sales, err := svc.ListSales(ctx, models.SaleFilter{Date: &day1})
	require.NoError(t, err)
	assert.Len(t, sales, initialStock)
}

func TestConcurrentMaterializationCreatesOneRecord(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	_, err := svc.OpenDay(ctx, owner, openInput(day1, 10, 100))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := svc.GetExistingStock(ctx, day2); err != nil {
				t.Errorf("get existing stock: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.GetOpenStock(ctx, day2); err != nil {
				t.Errorf("get open stock: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, countRecords(t, mem, day2, models.StatusExisting))
	assert.Equal(t, 1, countRecords(t, mem, day2, models.StatusOpen))
}

func TestGetOpenStockRollsForward(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	mem.Seed(
		models.StockRecord{Date: day1, TyreSize: size, Location: loc, Status: models.StatusExisting, Quantity: 7},
		models.StockRecord{Date: day1, TyreSize: size, Location: loc, Status: models.StatusOpen, Quantity: 10},
		models.StockRecord{Date: day1, TyreSize: "205/55R16", Location: "B", Status: models.StatusOpen, Quantity: 4},
	)

	open, err := svc.GetOpenStock(ctx, day2)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, size, open[0].TyreSize)
	assert.Equal(t, 7, open[0].Quantity)
	assert.Equal(t, "205/55R16", open[1].TyreSize)
	assert.Equal(t, 4, open[1].Quantity)

	again, err := svc.GetOpenStock(ctx, day2)
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestComputeClosingStockIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	mem.Seed(
		models.StockRecord{Date: day1, TyreSize: size, Location: loc, Status: models.StatusOpen, Quantity: 10},
		models.StockRecord{Date: day1, TyreSize: size, Location: loc, Status: models.StatusExisting, Quantity: 7},
		models.StockRecord{Date: day1, TyreSize: "205/55R16", Location: "B", Status: models.StatusOpen, Quantity: 4},
	)

	closing, err := svc.ComputeClosingStock(ctx, day2)
	require.NoError(t, err)
	require.Len(t, closing, 2)
	assert.Equal(t, 7, closing[0].Quantity)
	assert.Equal(t, 4, closing[1].Quantity)
	for _, rec := range closing {
		assert.True(t, rec.Date.Equal(day1))
		assert.Equal(t, models.StatusClosing, rec.Status)
	}

	_, err = svc.ComputeClosingStock(ctx, day2)
	require.NoError(t, err)
	assert.Equal(t, 2, countRecords(t, mem, day1, models.StatusClosing))

	listed, err := svc.ListClosingStock(ctx, day1)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestClosingStockSeedsNextDay(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	mem.Seed(models.StockRecord{Date: day1, TyreSize: size, Location: loc, Status: models.StatusClosing, Quantity: 9})

	existing, err := svc.GetExistingStock(ctx, day2)
	require.NoError(t, err)
	require.Len(t, existing, 1)
	assert.Equal(t, 9, existing[0].Quantity)
}

func TestRestock(t *testing.T) {
	ctx := context.Background()

	t.Run("requires_open_stock", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Restock(ctx, owner, openInput(day1, 5, 100))
		assert.ErrorIs(t, err, apperrors.ErrItemNotFound)
	})

	t.Run("adds_to_existing", func(t *testing.T) {
		svc, mem := newTestService(t)
		_, err := svc.OpenDay(ctx, owner, openInput(day1, 10, 100))
		require.NoError(t, err)

		rec, err := svc.Restock(ctx, owner, openInput(day1, 5, 120))
		require.NoError(t, err)
		assert.Equal(t, 15, rec.Quantity)
		assert.True(t, decimal.NewFromInt(1600).Equal(rec.TotalAmount))
		assert.Equal(t, 10, mustFindOne(t, mem, day1, models.StatusOpen).Quantity)
	})

	t.Run("creates_existing_from_open", func(t *testing.T) {
		svc, mem := newTestService(t)
		mem.Seed(models.StockRecord{Date: day1, TyreSize: size, Location: loc, Status: models.StatusOpen, Quantity: 8, TotalAmount: decimal.NewFromInt(800)})

		rec, err := svc.Restock(ctx, worker, openInput(day1, 2, 100))
		require.NoError(t, err)
		assert.Equal(t, 10, rec.Quantity)
		assert.True(t, decimal.NewFromInt(1000).Equal(rec.TotalAmount))
	})
}

func TestDuplicateRecordsAreSurfaced(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	dup := models.StockRecord{Date: day1, TyreSize: size, Location: loc, Status: models.StatusExisting, Quantity: 3}
	mem.Seed(dup, dup)

	_, err := svc.RecordSale(ctx, owner, saleInput(day1, 1, 100))
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousMatch)

	_, err = svc.GetExistingStock(ctx, day2)
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousMatch)
}

type recordingHook struct {
	mu    sync.Mutex
	sales []models.SaleRecord
	err   error
}

func (h *recordingHook) OnSale(_ context.Context, sale models.SaleRecord, _ models.StockRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sales = append(h.sales, sale)
	return h.err
}

func TestSaleHooksAreBestEffort(t *testing.T) {
	ctx := context.Background()
	failing := &recordingHook{err: errors.New("smtp down")}
	ok := &recordingHook{}
	svc, _ := newTestService(t, WithSaleHooks(failing, ok))

	_, err := svc.OpenDay(ctx, owner, openInput(day1, 5, 100))
	require.NoError(t, err)

	receipt, err := svc.RecordSale(ctx, owner, saleInput(day1, 1, 100))
	require.NoError(t, err)

	svc.Close()
	require.Len(t, failing.sales, 1)
	require.Len(t, ok.sales, 1)
	assert.Equal(t, receipt.Sale.ID, ok.sales[0].ID)
}

// flakyLedger fails the first n Find calls with a transient error.
type flakyLedger struct {
	*ledger.Memory
	failures atomic.Int32
}

func (f *flakyLedger) Find(ctx context.Context, filter ledger.Filter) ([]models.StockRecord, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, &ledger.UnavailableError{Op: "find stock", Err: errors.New("connection reset")}
	}
	return f.Memory.Find(ctx, filter)
}

func TestTransientStorageFailuresAreRetried(t *testing.T) {
	ctx := context.Background()

	flaky := &flakyLedger{Memory: ledger.NewMemory()}
	flaky.failures.Store(2)
	svc := NewService(flaky, nil, WithRetries(3))

	_, err := svc.ListClosingStock(ctx, day1)
	assert.NoError(t, err)

	flaky.failures.Store(5)
	_, err = svc.ListClosingStock(ctx, day1)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
}

func TestListStockKeys(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	mem.Seed(
		models.StockRecord{Date: day1, TyreSize: size, Location: "A", Status: models.StatusOpen},
		models.StockRecord{Date: day1, TyreSize: "205/55R16", Location: "B", Status: models.StatusExisting},
	)

	keys, err := svc.ListStockKeys(ctx, day1, "")
	require.NoError(t, err)
	assert.Equal(t, []string{size, "205/55R16"}, keys.TyreSizes)
	assert.Equal(t, []string{"A", "B"}, keys.Locations)

	keys, err = svc.ListStockKeys(ctx, day1, models.StatusOpen)
	require.NoError(t, err)
	assert.Equal(t, []string{size}, keys.TyreSizes)

	_, err = svc.ListStockKeys(ctx, day1, "open-stock-day")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestTodayUsesConfiguredLocation(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	late := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	svc := NewService(ledger.NewMemory(), nil, WithClock(func() time.Time { return late }), WithLocation(kolkata))

	assert.True(t, svc.Today().Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
}
