package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
)

var (
	// ErrSourceNotFound is returned when no source matches the id.
	ErrSourceNotFound = errors.New("source not found")
	// ErrDuplicateSource is returned when a source with the same URL exists.
	ErrDuplicateSource = errors.New("source already exists")
)

// AddSource stores a new source and returns it with its id.
func (db *DB) AddSource(ctx context.Context, url, sourceType, category string) (domain.Source, error) {
	id := uuid.New()

	var createdAt time.Time

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO sources (id, url, type, category)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO NOTHING
		RETURNING created_at
	`, pgtype.UUID{Bytes: id, Valid: true}, url, sourceType, category).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Source{}, fmt.Errorf("%w: %s", ErrDuplicateSource, url)
		}

		return domain.Source{}, fmt.Errorf("add source: %w", err)
	}

	return domain.Source{ID: id.String(), URL: url, Type: sourceType, Category: category, CreatedAt: createdAt}, nil
}

// SourceExists reports whether a source with the URL is stored.
func (db *DB) SourceExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sources WHERE url = $1)`, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("check source exists: %w", err)
	}

	return exists, nil
}

// ListSources returns all sources, optionally only those of one type.
func (db *DB) ListSources(ctx context.Context, sourceType string) ([]domain.Source, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, url, type, category, created_at
		FROM sources
		WHERE ($1 = '' OR type = $1)
		ORDER BY created_at, url
	`, sourceType)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source

	for rows.Next() {
		var (
			id pgtype.UUID
			s  domain.Source
		)

		if err := rows.Scan(&id, &s.URL, &s.Type, &s.Category, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf(errFmtScanRow, "source", err)
		}

		s.ID = fromUUID(id)
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}

	return out, nil
}

// DeleteSource removes a source by id.
func (db *DB) DeleteSource(ctx context.Context, id string) error {
	uid := toUUID(id)
	if !uid.Valid {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}

	tag, err := db.Pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}

	return nil
}
