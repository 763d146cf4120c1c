// Package notification emails a stock summary after every sale.
package notification

import (
	"context"
	"fmt"
	"html"

	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/pkg/clients/mailer"
)

const subject = "Stock Update Notification"

// Service sends the stock update email. It implements stock.SaleHook.
type Service struct {
	mailer     mailer.Client
	recipients []string
	logger     *zap.Logger
}

// NewService builds a notifier mailing recipients through client.
func NewService(client mailer.Client, recipients []string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{mailer: client, recipients: recipients, logger: logger}
}

// OnSale mails the remaining existing stock left by sale.
func (s *Service) OnSale(ctx context.Context, sale models.SaleRecord, stock models.StockRecord) error {
	msg := BuildMessage(sale, stock)
	msg.To = s.recipients

	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send stock update for sale %s: %w", sale.ID, err)
	}
	s.logger.Debug("stock update mailed", zap.String("sale_id", sale.ID), zap.Int("recipients", len(s.recipients)))
	return nil
}

// BuildMessage renders the email body for a committed sale without recipients.
func BuildMessage(sale models.SaleRecord, stock models.StockRecord) mailer.Message {
	date := models.FormatDay(stock.Date)

	text := fmt.Sprintf(
		"Stock updated successfully. Details: Date: %s, Tyre Size: %s, Location: %s, Sold: %d, Quantity: %d, Total Amount: %s",
		date, stock.TyreSize, stock.Location, sale.Quantity, stock.Quantity, stock.TotalAmount.StringFixed(2))

	body := fmt.Sprintf(
		"<p>Stock updated successfully.</p><p>Details:</p><ul>"+
			"<li>Date: %s</li><li>Tyre Size: %s</li><li>Location: %s</li>"+
			"<li>Sold: %d</li><li>Quantity: %d</li><li>Total Amount: %s</li></ul>",
		date, html.EscapeString(stock.TyreSize), html.EscapeString(stock.Location),
		sale.Quantity, stock.Quantity, stock.TotalAmount.StringFixed(2))

	return mailer.Message{Subject: subject, Text: text, HTML: body}
}
