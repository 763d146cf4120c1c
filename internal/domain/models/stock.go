package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockStatus enumerates the lifecycle states a stock record can be in.
type StockStatus string

const (
	StatusOpen     StockStatus = "open-stock"
	StatusExisting StockStatus = "existing-stock"
	StatusClosing  StockStatus = "closing-stock"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s StockStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusExisting, StatusClosing:
		return true
	}
	return false
}

// StockKey identifies a single stock record. At most one record exists per key.
type StockKey struct {
	Date     time.Time   `json:"date"`
	TyreSize string      `json:"tyreSize"`
	Location string      `json:"location"`
	Status   StockStatus `json:"status"`
}

// WithStatus returns a copy of the key pointing at another lifecycle state.
func (k StockKey) WithStatus(status StockStatus) StockKey {
	k.Status = status
	return k
}

// WithDate returns a copy of the key on another day.
func (k StockKey) WithDate(day time.Time) StockKey {
	k.Date = day
	return k
}

// StockRecord captures inventory state for one tyre size at one location on one day.
//
// TotalAmount accumulates quantity*price deltas: restocks add, sales subtract.
// It is not recomputed from Quantity*PricePerUnit and can diverge from it when
// lots are bought or sold at different prices.
type StockRecord struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	TyreSize     string          `json:"tyreSize"`
	Location     string          `json:"location"`
	Status       StockStatus     `json:"status"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	SSP          string          `json:"SSP,omitempty"`
	Comment      string          `json:"comment,omitempty"`
	Version      int64           `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Key returns the unique key of the record.
func (r StockRecord) Key() StockKey {
	return StockKey{Date: r.Date, TyreSize: r.TyreSize, Location: r.Location, Status: r.Status}
}

// WithKey returns a copy of r moved onto key.
func (r StockRecord) WithKey(key StockKey) StockRecord {
	r.Date = key.Date
	r.TyreSize = key.TyreSize
	r.Location = key.Location
	r.Status = key.Status
	return r
}

// CarryForward builds a new record for key seeded from r's quantity, amounts and SSP.
func (r StockRecord) CarryForward(key StockKey, now time.Time) StockRecord {
	return StockRecord{
		Date:         key.Date,
		TyreSize:     key.TyreSize,
		Location:     key.Location,
		Status:       key.Status,
		Quantity:     r.Quantity,
		PricePerUnit: r.PricePerUnit,
		TotalAmount:  r.TotalAmount,
		SSP:          r.SSP,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
