package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleRecord is an immutable sales transaction. It debits the existing-stock
// record sharing its date, tyre size and location.
type SaleRecord struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	TyreSize     string          `json:"tyreSize"`
	Location     string          `json:"location"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	CustomerName string          `json:"customerName,omitempty"`
	PhoneNumber  string          `json:"phoneNumber,omitempty"`
	Comment      string          `json:"comment,omitempty"`
	UserID       string          `json:"userId"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// StockKey returns the key of the existing-stock record the sale debits.
func (s SaleRecord) StockKey() StockKey {
	return StockKey{Date: s.Date, TyreSize: s.TyreSize, Location: s.Location, Status: StatusExisting}
}

// SaleFilter narrows sales listings. Zero fields are ignored.
type SaleFilter struct {
	Date     *time.Time
	TyreSize string
	Location string
	UserID   string
}
