package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/repository/ledger"
)

const (
	stocksCollection        = "stocks"
	salesCollection         = "sales"
	specialOrdersCollection = "specialorders"

	stockKeyIndex = "stock_key_unique"
)

// MongoDBRepository stores stock records, sales and special orders in MongoDB.
type MongoDBRepository struct {
	client        *mongo.Client
	stocks        *mongo.Collection
	sales         *mongo.Collection
	specialOrders *mongo.Collection
	logger        *zap.Logger
	now           func() time.Time
	transactions  bool
	casAttempts   int
}

// Option customizes a MongoDBRepository.
type Option func(*MongoDBRepository)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *MongoDBRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTransactions toggles multi-document transactions for sales. They need a
// replica set; standalone servers fall back to a compensating write.
func WithTransactions(enabled bool) Option {
	return func(r *MongoDBRepository) { r.transactions = enabled }
}

// NewMongoDBRepository connects to uri and binds the collections of dbName.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, opts ...Option) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(dbName)
	r := &MongoDBRepository{
		client:        client,
		stocks:        db.Collection(stocksCollection),
		sales:         db.Collection(salesCollection),
		specialOrders: db.Collection(specialOrdersCollection),
		logger:        zap.NewNop(),
		now:           time.Now,
		transactions:  true,
		casAttempts:   5,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("repo.mongodb")
	return r, nil
}

// EnsureIndexes creates the unique stock-key index and the lookup indexes.
// It fails when duplicate stock records already exist; run the repair
// command first in that case.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.stocks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "date", Value: 1},
			{Key: "tyreSize", Value: 1},
			{Key: "location", Value: 1},
			{Key: "status", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName(stockKeyIndex),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("duplicate stock records prevent the unique index, run cmd/repair: %w", err)
		}
		return fmt.Errorf("failed to create stock index: %w", err)
	}

	_, err = r.sales.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: 1}, {Key: "tyreSize", Value: 1}, {Key: "location", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create sales index: %w", err)
	}

	_, err = r.specialOrders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create special orders index: %w", err)
	}

	r.logger.Info("indexes ensured")
	return nil
}

// Ping reports whether the server is reachable.
func (r *MongoDBRepository) Ping(ctx context.Context) error {
	return classify("ping", r.client.Ping(ctx, nil))
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// classify maps driver failures onto ledger errors. Transient failures become
// an UnavailableError so callers may retry idempotent work.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrAmbiguousMatch),
		errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrUnavailable):
		return err
	case errors.Is(err, mongo.ErrNoDocuments):
		return ledger.ErrNotFound
	case transient(err):
		return &ledger.UnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel("TransientTransactionError") || se.HasErrorLabel("RetryableWriteError")
	}
	return false
}
