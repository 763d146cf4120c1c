// Command repair removes duplicate stock records from MongoDB, keeping the
// oldest per key, then creates the unique index that keeps them out.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/config"
	"github.com/tyrestock/stockbook/internal/repository/mongodb"
	"github.com/tyrestock/stockbook/pkg/logger"
)

func main() {
	envFile := flag.String("env", "", "optional .env file")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}

	log := logger.Must(logger.New(cfg.LogLevel)).Named("repair")
	defer func() { _ = log.Sync() }()

	if cfg.Storage.Driver != config.StorageMongoDB {
		log.Fatal("repair only applies to mongodb storage", zap.String("storage", cfg.Storage.Driver))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("repair failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	repo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, mongodb.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(context.Background()); err != nil {
			log.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	removed, err := repo.Deduplicate(ctx)
	if err != nil {
		return fmt.Errorf("deduplicate stock records: %w", err)
	}
	log.Info("duplicates removed", zap.Int("count", removed))

	return repo.EnsureIndexes(ctx)
}
