package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/internship-compass/internal/types"
)

// ListInternships returns every catalog record in display order.
func (db *DB) ListInternships(ctx context.Context) ([]types.Internship, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT title, description, sector, location, skills_required
		 FROM internships ORDER BY position, title`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list internships: %w", err)
	}
	defer rows.Close()

	var internships []types.Internship
	for rows.Next() {
		var in types.Internship
		if err := rows.Scan(&in.Title, &in.Description, &in.Sector, &in.Location, &in.SkillsRequired); err != nil {
			return nil, fmt.Errorf("failed to scan internship: %w", err)
		}
		internships = append(internships, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list internships: %w", err)
	}
	return internships, nil
}

// ListSectors returns the sector options in display order.
func (db *DB) ListSectors(ctx context.Context) ([]types.Sector, error) {
	rows, err := db.pool.Query(ctx, `SELECT value, label FROM sectors ORDER BY position, value`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sectors: %w", err)
	}
	defer rows.Close()

	var sectors []types.Sector
	for rows.Next() {
		var s types.Sector
		if err := rows.Scan(&s.Value, &s.Label); err != nil {
			return nil, fmt.Errorf("failed to scan sector: %w", err)
		}
		sectors = append(sectors, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sectors: %w", err)
	}
	return sectors, nil
}

// SeedCatalog upserts sectors and internships in one transaction.
// Slice order becomes display order.
func (db *DB) SeedCatalog(ctx context.Context, sectors []types.Sector, internships []types.Internship) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i, s := range sectors {
		batch.Queue(
			`INSERT INTO sectors (value, label, position) VALUES ($1, $2, $3)
			 ON CONFLICT (value) DO UPDATE SET label = $2, position = $3`,
			s.Value, s.Label, i,
		)
	}
	for i, in := range internships {
		skills := in.SkillsRequired
		if skills == nil {
			skills = []string{}
		}
		batch.Queue(
			`INSERT INTO internships (title, description, sector, location, skills_required, position)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (title) DO UPDATE SET description = $2, sector = $3, location = $4,
			   skills_required = $5, position = $6`,
			in.Title, in.Description, in.Sector, in.Location, skills, i,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}
