package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/config"
)

// Applies the ledger schema. The schema uses IF NOT EXISTS throughout, so
// re-running against an existing database is a no-op.
func main() {
	schemaPath := flag.String("schema", "internal/adapters/postgres/schema.sql", "path to schema file")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		logger.Fatal("read schema", zap.String("path", *schemaPath), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("connect to ledger", zap.Error(err))
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		logger.Fatal("apply schema", zap.Error(err))
	}

	fmt.Println("schema applied")
}
