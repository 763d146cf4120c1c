package mongodb

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tyrestock/stockbook/internal/domain/models"
)

// amount stores money as Decimal128. Documents written by the previous
// service hold plain numbers, so doubles and integers decode too.
type amount struct {
	decimal.Decimal
}

func (a amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d, err := primitive.ParseDecimal128(a.Decimal.String())
	if err != nil {
		return 0, nil, fmt.Errorf("encode amount %s: %w", a.Decimal, err)
	}
	return bson.MarshalValue(d)
}

func (a *amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Decimal128:
		d, err := decimal.NewFromString(raw.Decimal128().String())
		if err != nil {
			return fmt.Errorf("decode amount: %w", err)
		}
		a.Decimal = d
	case bsontype.Double:
		a.Decimal = decimal.NewFromFloat(raw.Double())
	case bsontype.Int32:
		a.Decimal = decimal.NewFromInt32(raw.Int32())
	case bsontype.Int64:
		a.Decimal = decimal.NewFromInt(raw.Int64())
	case bsontype.Null, bsontype.Undefined:
		a.Decimal = decimal.Zero
	default:
		return fmt.Errorf("decode amount: unsupported bson type %s", t)
	}
	return nil
}

type stockDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Date         time.Time          `bson:"date"`
	TyreSize     string             `bson:"tyreSize"`
	Location     string             `bson:"location"`
	Status       string             `bson:"status"`
	Quantity     int                `bson:"quantity"`
	PricePerUnit amount             `bson:"pricePerUnit"`
	TotalAmount  amount             `bson:"totalAmount"`
	SSP          string             `bson:"SSP,omitempty"`
	Comment      string             `bson:"comment,omitempty"`
	Version      int64              `bson:"version"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func toStockDocument(r models.StockRecord) stockDocument {
	doc := stockDocument{
		Date:         r.Date,
		TyreSize:     r.TyreSize,
		Location:     r.Location,
		Status:       string(r.Status),
		Quantity:     r.Quantity,
		PricePerUnit: amount{r.PricePerUnit},
		TotalAmount:  amount{r.TotalAmount},
		SSP:          r.SSP,
		Comment:      r.Comment,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if id, err := primitive.ObjectIDFromHex(r.ID); err == nil {
		doc.ID = id
	}
	return doc
}

func (d stockDocument) record() models.StockRecord {
	return models.StockRecord{
		ID:           d.ID.Hex(),
		Date:         d.Date.UTC(),
		TyreSize:     d.TyreSize,
		Location:     d.Location,
		Status:       models.StockStatus(d.Status),
		Quantity:     d.Quantity,
		PricePerUnit: d.PricePerUnit.Decimal,
		TotalAmount:  d.TotalAmount.Decimal,
		SSP:          d.SSP,
		Comment:      d.Comment,
		Version:      d.Version,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type saleDocument struct {
	ID           string    `bson:"_id"`
	Date         time.Time `bson:"date"`
	TyreSize     string    `bson:"tyreSize"`
	Location     string    `bson:"location"`
	Quantity     int       `bson:"quantity"`
	PricePerUnit amount    `bson:"pricePerUnit"`
	TotalAmount  amount    `bson:"totalAmount"`
	CustomerName string    `bson:"customerName,omitempty"`
	PhoneNumber  string    `bson:"phoneNumber,omitempty"`
	Comment      string    `bson:"comments,omitempty"`
	User         string    `bson:"user,omitempty"`
	CreatedAt    time.Time `bson:"createdAt"`
}

func toSaleDocument(s models.SaleRecord) saleDocument {
	return saleDocument{
		ID:           s.ID,
		Date:         s.Date,
		TyreSize:     s.TyreSize,
		Location:     s.Location,
		Quantity:     s.Quantity,
		PricePerUnit: amount{s.PricePerUnit},
		TotalAmount:  amount{s.TotalAmount},
		CustomerName: s.CustomerName,
		PhoneNumber:  s.PhoneNumber,
		Comment:      s.Comment,
		User:         s.UserID,
		CreatedAt:    s.CreatedAt,
	}
}

func (d saleDocument) record() models.SaleRecord {
	return models.SaleRecord{
		ID:           d.ID,
		Date:         d.Date.UTC(),
		TyreSize:     d.TyreSize,
		Location:     d.Location,
		Quantity:     d.Quantity,
		PricePerUnit: d.PricePerUnit.Decimal,
		TotalAmount:  d.TotalAmount.Decimal,
		CustomerName: d.CustomerName,
		PhoneNumber:  d.PhoneNumber,
		Comment:      d.Comment,
		UserID:       d.User,
		CreatedAt:    d.CreatedAt,
	}
}

// specialOrderDocument keeps date as a YYYY-MM-DD string, the way existing
// special orders were stored.
type specialOrderDocument struct {
	ID           string    `bson:"_id"`
	Date         string    `bson:"date"`
	CustomerName string    `bson:"customerName"`
	PhoneNumber  string    `bson:"phoneNumber"`
	TyreSize     string    `bson:"tyreSize"`
	Quantity     int       `bson:"quantity"`
	Location     string    `bson:"location"`
	Comment      string    `bson:"comment,omitempty"`
	User         string    `bson:"user,omitempty"`
	CreatedAt    time.Time `bson:"createdAt"`
}

func toSpecialOrderDocument(o models.SpecialOrder) specialOrderDocument {
	return specialOrderDocument{
		ID:           o.ID,
		Date:         models.FormatDay(o.Date),
		CustomerName: o.CustomerName,
		PhoneNumber:  o.PhoneNumber,
		TyreSize:     o.TyreSize,
		Quantity:     o.Quantity,
		Location:     o.Location,
		Comment:      o.Comment,
		User:         o.UserID,
		CreatedAt:    o.CreatedAt,
	}
}

func (d specialOrderDocument) record() models.SpecialOrder {
	day, _ := models.ParseDay(d.Date)
	return models.SpecialOrder{
		ID:           d.ID,
		Date:         day,
		CustomerName: d.CustomerName,
		PhoneNumber:  d.PhoneNumber,
		TyreSize:     d.TyreSize,
		Quantity:     d.Quantity,
		Location:     d.Location,
		Comment:      d.Comment,
		UserID:       d.User,
		CreatedAt:    d.CreatedAt,
	}
}
