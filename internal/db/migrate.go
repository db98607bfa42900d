package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate runs idempotent DDL statements in order. Each store package
// exports its own statement list so every service only creates its tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool, statements []string) error {
	for i, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
