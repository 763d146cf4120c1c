package sheets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/tyrestock/stockbook/internal/config"
	"github.com/tyrestock/stockbook/internal/domain/models"
)

// Writer appends rows to a spreadsheet range.
type Writer interface {
	WriteRow(ctx context.Context, sheetRange string, values []interface{}) error
}

// GoogleSheetRepository implements Writer using the official Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed repository instance.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// WriteRow appends the provided values to the supplied sheet range.
func (r *GoogleSheetRepository) WriteRow(ctx context.Context, sheetRange string, values []interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{values}}

	call := r.service.Spreadsheets.Values.Append(r.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append row into range %s: %w", sheetRange, err)
	}

	r.logger.Debug("row appended to sheet", zap.String("range", sheetRange))
	return nil
}

// SalesExporter mirrors every committed sale as a spreadsheet row. It
// implements stock.SaleHook.
type SalesExporter struct {
	writer     Writer
	sheetRange string
}

// NewSalesExporter appends sale rows to sheetRange through writer.
func NewSalesExporter(writer Writer, sheetRange string) *SalesExporter {
	return &SalesExporter{writer: writer, sheetRange: sheetRange}
}

func (e *SalesExporter) OnSale(ctx context.Context, sale models.SaleRecord, stock models.StockRecord) error {
	return e.writer.WriteRow(ctx, e.sheetRange, SaleRow(sale, stock))
}

// SaleRow lays out a sale in the column order of the sales sheet.
func SaleRow(sale models.SaleRecord, stock models.StockRecord) []interface{} {
	return []interface{}{
		models.FormatDay(sale.Date),
		sale.TyreSize,
		sale.Location,
		sale.Quantity,
		sale.PricePerUnit.StringFixed(2),
		sale.TotalAmount.StringFixed(2),
		sale.CustomerName,
		sale.PhoneNumber,
		sale.UserID,
		stock.Quantity,
	}
}
