package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
)

// ErrDuplicateMaterial is returned when a material with the same URL exists.
var ErrDuplicateMaterial = errors.New("material already exists")

const materialColumns = `m.id, m.url, m.title, m.text, m.category, m.date, m.source_type`

// SaveMaterial inserts a material with its embedding and returns its id.
func (db *DB) SaveMaterial(ctx context.Context, m domain.Material, embedding []float32) (string, error) {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}

	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO materials (id, url, title, text, category, date, source_type, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector)
		ON CONFLICT (url) DO NOTHING
	`, toUUID(id), m.URL, nullableText(m.Title), SanitizeUTF8(m.Text), m.Category, m.Date, m.SourceType, pgvector.NewVector(embedding))
	if err != nil {
		return "", fmt.Errorf("save material: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("%w: %s", ErrDuplicateMaterial, m.URL)
	}

	return id, nil
}

// MaterialExists reports whether a material with the URL is stored.
func (db *DB) MaterialExists(ctx context.Context, url string) (bool, error) {
	var exists bool

	err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM materials WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check material exists: %w", err)
	}

	return exists, nil
}

// SearchSimilar returns materials whose cosine similarity to embedding is at
// least threshold, most similar first. An empty category searches all.
func (db *DB) SearchSimilar(ctx context.Context, embedding []float32, category string, threshold float32) ([]domain.Material, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+materialColumns+`,
		       1 - (m.embedding <=> $1::vector) AS similarity
		FROM materials m
		WHERE ($2 = '' OR m.category = $2)
		  AND 1 - (m.embedding <=> $1::vector) >= $3
		ORDER BY m.embedding <=> $1::vector
		LIMIT $4
	`, pgvector.NewVector(embedding), category, float64(threshold), clampInt32(db.searchLimit))
	if err != nil {
		return nil, fmt.Errorf("search similar materials: %w", err)
	}

	return collectMaterials(rows, true)
}

// SearchByDateRange returns materials dated within [start, end] inclusive,
// ordered by date then insertion. Dates are YYYY-MM-DD.
func (db *DB) SearchByDateRange(ctx context.Context, category, start, end string) ([]domain.Material, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+materialColumns+`
		FROM materials m
		WHERE ($1 = '' OR m.category = $1)
		  AND left(m.date, 10) BETWEEN $2 AND $3
		ORDER BY left(m.date, 10), m.created_at, m.id
	`, category, start, end)
	if err != nil {
		return nil, fmt.Errorf("search materials by date: %w", err)
	}

	return collectMaterials(rows, false)
}

// Categories returns the distinct categories of stored materials and sources.
func (db *DB) Categories(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT category FROM materials WHERE category <> ''
		UNION
		SELECT category FROM sources WHERE category <> ''
		ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	categories, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf(errFmtScanRow, "category", err)
	}

	return categories, nil
}

func collectMaterials(rows pgx.Rows, withScore bool) ([]domain.Material, error) {
	defer rows.Close()

	var out []domain.Material

	for rows.Next() {
		var (
			id         pgtype.UUID
			m          domain.Material
			title      pgtype.Text
			similarity float64
		)

		dest := []any{&id, &m.URL, &title, &m.Text, &m.Category, &m.Date, &m.SourceType}
		if withScore {
			dest = append(dest, &similarity)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf(errFmtScanRow, "material", err)
		}

		m.ID = fromUUID(id)
		m.Title = title.String
		m.Score = float32(similarity)
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate materials: %w", err)
	}

	return out, nil
}
