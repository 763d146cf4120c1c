package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/domain/models"
	"github.com/tyrestock/stockbook/internal/repository/ledger"
)

var (
	_ ledger.Ledger   = (*MongoDBRepository)(nil)
	_ ledger.Repairer = (*MongoDBRepository)(nil)

	errWriteConflict = errors.New("stock record kept changing under concurrent writers")
)

var stockSort = bson.D{
	{Key: "tyreSize", Value: 1},
	{Key: "location", Value: 1},
	{Key: "status", Value: 1},
	{Key: "_id", Value: 1},
}

func filterDoc(f ledger.Filter) bson.M {
	doc := bson.M{}
	if f.Date != nil {
		doc["date"] = *f.Date
	}
	if f.TyreSize != "" {
		doc["tyreSize"] = f.TyreSize
	}
	if f.Location != "" {
		doc["location"] = f.Location
	}
	if f.Status != "" {
		doc["status"] = string(f.Status)
	}
	return doc
}

func keyDoc(key models.StockKey) bson.M {
	return filterDoc(ledger.KeyFilter(key))
}

func (r *MongoDBRepository) findDocs(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.StockRecord, error) {
	cursor, err := r.stocks.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []stockDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]models.StockRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	return out, nil
}

// Find returns the stock documents matching filter.
func (r *MongoDBRepository) Find(ctx context.Context, filter ledger.Filter) ([]models.StockRecord, error) {
	records, err := r.findDocs(ctx, filterDoc(filter), options.Find().SetSort(stockSort))
	return records, classify("find stock", err)
}

// FindOne returns the single stock document matching filter.
func (r *MongoDBRepository) FindOne(ctx context.Context, filter ledger.Filter) (models.StockRecord, error) {
	rec, err := r.findOne(ctx, filterDoc(filter))
	return rec, classify("find one stock", err)
}

func (r *MongoDBRepository) findOne(ctx context.Context, filter bson.M) (models.StockRecord, error) {
	records, err := r.findDocs(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(2))
	if err != nil {
		return models.StockRecord{}, err
	}
	switch len(records) {
	case 0:
		return models.StockRecord{}, ledger.ErrNotFound
	case 1:
		return records[0], nil
	default:
		return models.StockRecord{}, ledger.ErrAmbiguousMatch
	}
}

// InsertIfAbsent writes record only when its key is unused. The unique index
// arbitrates concurrent callers; losers read back the winner's record.
func (r *MongoDBRepository) InsertIfAbsent(ctx context.Context, record models.StockRecord) (models.StockRecord, bool, error) {
	record.Version = 1
	doc := toStockDocument(record)
	doc.ID = primitive.NewObjectID()

	res, err := r.stocks.UpdateOne(ctx,
		keyDoc(record.Key()),
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return models.StockRecord{}, false, classify("insert stock", err)
	}
	created := err == nil && res.UpsertedCount == 1

	stored, err := r.findOne(ctx, keyDoc(record.Key()))
	if err != nil {
		return models.StockRecord{}, false, classify("insert stock", err)
	}
	return stored, created, nil
}

// Upsert applies mutate with optimistic concurrency on the version field.
// Documents written before versioning carry no version and count as zero.
func (r *MongoDBRepository) Upsert(ctx context.Context, key models.StockKey, mutate ledger.Mutation) (models.StockRecord, error) {
	for attempt := 0; attempt < r.casAttempts; attempt++ {
		current, err := r.findOne(ctx, keyDoc(key))
		if errors.Is(err, ledger.ErrNotFound) {
			next := mutate(nil).WithKey(key)
			next.Version = 1
			doc := toStockDocument(next)
			doc.ID = primitive.NewObjectID()

			if _, err := r.stocks.InsertOne(ctx, doc); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					continue
				}
				return models.StockRecord{}, classify("upsert stock", err)
			}
			return doc.record(), nil
		}
		if err != nil {
			return models.StockRecord{}, classify("upsert stock", err)
		}

		next := mutate(&current).WithKey(key)
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.Version = current.Version + 1
		doc := toStockDocument(next)

		res, err := r.stocks.ReplaceOne(ctx, versionFilter(doc.ID, current.Version), doc)
		if err != nil {
			return models.StockRecord{}, classify("upsert stock", err)
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
		r.logger.Debug("stock write conflict, retrying",
			zap.String("tyre_size", key.TyreSize),
			zap.String("location", key.Location),
			zap.Int("attempt", attempt+1))
	}
	return models.StockRecord{}, &ledger.UnavailableError{Op: "upsert stock", Err: errWriteConflict}
}

func versionFilter(id primitive.ObjectID, version int64) bson.M {
	if version == 0 {
		return bson.M{"_id": id, "version": bson.M{"$in": bson.A{0, nil}}}
	}
	return bson.M{"_id": id, "version": version}
}

// CommitSale debits existing stock and inserts the sale atomically. Without
// transactions the debit is undone when the sale insert fails.
func (r *MongoDBRepository) CommitSale(ctx context.Context, sale models.SaleRecord) (models.StockRecord, error) {
	if !r.transactions {
		return r.commitSaleCompensating(ctx, sale)
	}

	session, err := r.client.StartSession()
	if err != nil {
		return models.StockRecord{}, classify("commit sale", err)
	}
	defer session.EndSession(ctx)

	out, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		stock, err := r.debit(sc, sale)
		if err != nil {
			return nil, err
		}
		if _, err := r.sales.InsertOne(sc, toSaleDocument(sale)); err != nil {
			return nil, err
		}
		return stock, nil
	})
	if err != nil {
		return models.StockRecord{}, classify("commit sale", err)
	}
	return out.(models.StockRecord), nil
}

func (r *MongoDBRepository) commitSaleCompensating(ctx context.Context, sale models.SaleRecord) (models.StockRecord, error) {
	stock, err := r.debit(ctx, sale)
	if err != nil {
		return models.StockRecord{}, classify("commit sale", err)
	}

	if _, err := r.sales.InsertOne(ctx, toSaleDocument(sale)); err != nil {
		undo := bson.M{
			"$inc": bson.M{"quantity": sale.Quantity, "totalAmount": amount{sale.TotalAmount}, "version": 1},
			"$set": bson.M{"updatedAt": r.now()},
		}
		if _, uerr := r.stocks.UpdateOne(context.WithoutCancel(ctx), keyDoc(sale.StockKey()), undo); uerr != nil {
			r.logger.Error("failed to restore stock after sale insert failure",
				zap.String("sale_id", sale.ID),
				zap.String("tyre_size", sale.TyreSize),
				zap.String("location", sale.Location),
				zap.Int("quantity", sale.Quantity),
				zap.Error(uerr))
		}
		return models.StockRecord{}, classify("commit sale", err)
	}
	return stock, nil
}

// debit decrements existing stock only when enough units remain.
func (r *MongoDBRepository) debit(ctx context.Context, sale models.SaleRecord) (models.StockRecord, error) {
	key := keyDoc(sale.StockKey())

	n, err := r.stocks.CountDocuments(ctx, key)
	if err != nil {
		return models.StockRecord{}, err
	}
	switch {
	case n == 0:
		return models.StockRecord{}, ledger.ErrNotFound
	case n > 1:
		return models.StockRecord{}, ledger.ErrAmbiguousMatch
	}

	cond := bson.M{"quantity": bson.M{"$gte": sale.Quantity}}
	for k, v := range key {
		cond[k] = v
	}
	update := bson.M{
		"$inc": bson.M{
			"quantity":    -sale.Quantity,
			"totalAmount": amount{sale.TotalAmount.Neg()},
			"version":     1,
		},
		"$set": bson.M{"updatedAt": r.now()},
	}

	var doc stockDocument
	err = r.stocks.FindOneAndUpdate(ctx, cond, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.StockRecord{}, ledger.ErrInsufficientStock
	}
	if err != nil {
		return models.StockRecord{}, err
	}
	return doc.record(), nil
}

// Distinct returns the sorted distinct values of field among matching stock documents.
func (r *MongoDBRepository) Distinct(ctx context.Context, field ledger.Field, filter ledger.Filter) ([]string, error) {
	values, err := r.stocks.Distinct(ctx, string(field), filterDoc(filter))
	if err != nil {
		return nil, classify("distinct stock", err)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FindSales returns the sales matching filter.
func (r *MongoDBRepository) FindSales(ctx context.Context, filter models.SaleFilter) ([]models.SaleRecord, error) {
	q := bson.M{}
	if filter.Date != nil {
		q["date"] = *filter.Date
	}
	if filter.TyreSize != "" {
		q["tyreSize"] = filter.TyreSize
	}
	if filter.Location != "" {
		q["location"] = filter.Location
	}
	if filter.UserID != "" {
		q["user"] = filter.UserID
	}

	cursor, err := r.sales.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, classify("find sales", err)
	}
	var docs []saleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("find sales", err)
	}

	out := make([]models.SaleRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	return out, nil
}

// Deduplicate keeps the oldest document of every stock key and deletes the rest.
func (r *MongoDBRepository) Deduplicate(ctx context.Context) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "date", Value: "$date"},
				{Key: "tyreSize", Value: "$tyreSize"},
				{Key: "location", Value: "$location"},
				{Key: "status", Value: "$status"},
			}},
			{Key: "ids", Value: bson.D{{Key: "$push", Value: "$_id"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "count", Value: bson.D{{Key: "$gt", Value: 1}}}}}},
	}

	cursor, err := r.stocks.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, classify("deduplicate stock", err)
	}
	var groups []struct {
		Key struct {
			TyreSize string `bson:"tyreSize"`
			Location string `bson:"location"`
			Status   string `bson:"status"`
		} `bson:"_id"`
		IDs []primitive.ObjectID `bson:"ids"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return 0, classify("deduplicate stock", err)
	}

	removed := 0
	for _, g := range groups {
		res, err := r.stocks.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": g.IDs[1:]}})
		if err != nil {
			return removed, classify("deduplicate stock", fmt.Errorf("delete duplicates of %s/%s: %w", g.Key.TyreSize, g.Key.Location, err))
		}
		removed += int(res.DeletedCount)
		r.logger.Info("duplicate stock records removed",
			zap.String("tyre_size", g.Key.TyreSize),
			zap.String("location", g.Key.Location),
			zap.String("status", g.Key.Status),
			zap.String("kept", g.IDs[0].Hex()),
			zap.Int64("deleted", res.DeletedCount))
	}
	return removed, nil
}
