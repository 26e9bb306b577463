// Package db provides PostgreSQL access for the internship catalog.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// EnsureSchema creates the catalog tables when they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sectors (
		value    TEXT PRIMARY KEY,
		label    TEXT NOT NULL,
		position INT  NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS internships (
		title           TEXT PRIMARY KEY,
		description     TEXT   NOT NULL,
		sector          TEXT   NOT NULL REFERENCES sectors (value),
		location        TEXT   NOT NULL,
		skills_required TEXT[] NOT NULL DEFAULT '{}',
		position        INT    NOT NULL DEFAULT 0
	)`,
}
