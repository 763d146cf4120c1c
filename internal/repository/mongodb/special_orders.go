package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tyrestock/stockbook/internal/domain/models"
)

// InsertSpecialOrder saves a special order.
func (r *MongoDBRepository) InsertSpecialOrder(ctx context.Context, order models.SpecialOrder) error {
	_, err := r.specialOrders.InsertOne(ctx, toSpecialOrderDocument(order))
	return classify("insert special order", err)
}

// ListSpecialOrders returns matching special orders, newest first.
func (r *MongoDBRepository) ListSpecialOrders(ctx context.Context, filter models.SpecialOrderFilter) ([]models.SpecialOrder, error) {
	q := bson.M{}
	if filter.Date != nil {
		q["date"] = models.FormatDay(*filter.Date)
	}
	if filter.TyreSize != "" {
		q["tyreSize"] = filter.TyreSize
	}
	if filter.Location != "" {
		q["location"] = filter.Location
	}

	cursor, err := r.specialOrders.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, classify("list special orders", err)
	}
	var docs []specialOrderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("list special orders", err)
	}

	out := make([]models.SpecialOrder, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	return out, nil
}
