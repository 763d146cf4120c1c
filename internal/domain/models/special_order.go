package models

import "time"

// SpecialOrder records a customer request for a tyre size that is not on hand.
type SpecialOrder struct {
	ID           string    `json:"id"`
	Date         time.Time `json:"date"`
	CustomerName string    `json:"customerName"`
	PhoneNumber  string    `json:"phoneNumber"`
	TyreSize     string    `json:"tyreSize"`
	Quantity     int       `json:"quantity"`
	Location     string    `json:"location"`
	Comment      string    `json:"comment,omitempty"`
	UserID       string    `json:"userId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SpecialOrderFilter narrows special-order listings. Zero fields are ignored.
type SpecialOrderFilter struct {
	Date     *time.Time
	TyreSize string
	Location string
}
