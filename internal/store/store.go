// Package store persists job records in PostgreSQL. It owns all SQL; callers
// get typed records and never need to lock, the pool serializes access.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// ErrNotFound is returned by lookups when no record matches.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

//go:embed sql/migrations/*.sql
var embedMigrations embed.FS

// Migrate applies the embedded goose migrations up to the latest version.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	stdDB := stdlib.OpenDBFromPool(s.pool)
	defer stdDB.Close()

	if err := goose.UpContext(ctx, stdDB, "sql/migrations"); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
