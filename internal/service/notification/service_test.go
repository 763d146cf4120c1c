package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/pkg/clients/mailer"
)

type mockMailer struct {
	sendFn func(ctx context.Context, msg mailer.Message) error
}

func (m *mockMailer) Send(ctx context.Context, msg mailer.Message) error {
	return m.sendFn(ctx, msg)
}

func fixtures() (models.SaleRecord, models.StockRecord) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	sale := models.SaleRecord{ID: "s1", Date: day, TyreSize: "185/65R15", Location: "A", Quantity: 3}
	stock := models.StockRecord{
		Date:        day,
		TyreSize:    "185/65R15",
		Location:    "A",
		Status:      models.StatusExisting,
		Quantity:    7,
		TotalAmount: decimal.NewFromInt(700),
	}
	return sale, stock
}

func TestOnSale(t *testing.T) {
	var sent mailer.Message
	svc := NewService(&mockMailer{sendFn: func(_ context.Context, msg mailer.Message) error {
		sent = msg
		return nil
	}}, []string{"owner@shop.in"}, nil)

	sale, stock := fixtures()
	require.NoError(t, svc.OnSale(context.Background(), sale, stock))

	assert.Equal(t, []string{"owner@shop.in"}, sent.To)
	assert.Equal(t, "Stock Update Notification", sent.Subject)
	assert.Contains(t, sent.Text, "Date: 2024-03-01")
	assert.Contains(t, sent.Text, "Tyre Size: 185/65R15")
	assert.Contains(t, sent.Text, "Quantity: 7")
	assert.Contains(t, sent.Text, "Total Amount: 700.00")
	assert.Contains(t, sent.HTML, "<li>Quantity: 7</li>")
}

func TestOnSaleError(t *testing.T) {
	svc := NewService(&mockMailer{sendFn: func(context.Context, mailer.Message) error {
		return errors.New("smtp down")
	}}, []string{"owner@shop.in"}, nil)

	sale, stock := fixtures()
	err := svc.OnSale(context.Background(), sale, stock)
	assert.ErrorContains(t, err, "smtp down")
	assert.ErrorContains(t, err, "s1")
}

func TestBuildMessageEscapesHTML(t *testing.T) {
	sale, stock := fixtures()
	stock.Location = "<b>Shed</b>"
	msg := BuildMessage(sale, stock)
	assert.Contains(t, msg.HTML, "&lt;b&gt;Shed&lt;/b&gt;")
	assert.Empty(t, msg.To)
}
