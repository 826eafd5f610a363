package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
)

// ErrDigestNotFound is returned when no stored digest matches the key.
var ErrDigestNotFound = errors.New("digest not found")

// DigestKey identifies a stored digest.
type DigestKey struct {
	Mode     domain.AnalysisMode
	Category string
	Period   string
}

// GetDigest returns a previously generated digest.
func (db *DB) GetDigest(ctx context.Context, key DigestKey) (domain.Success, error) {
	s := domain.Success{Mode: key.Mode, Category: key.Category, Period: key.Period}

	var materials, chunks int32

	err := db.Pool.QueryRow(ctx, `
		SELECT analysis, materials_count, chunks_count, model
		FROM digests
		WHERE mode = $1 AND category = $2 AND period = $3
	`, key.Mode.String(), key.Category, key.Period).Scan(&s.Analysis, &materials, &chunks, &s.Model)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Success{}, ErrDigestNotFound
		}

		return domain.Success{}, fmt.Errorf("get digest: %w", err)
	}

	s.MaterialsCount = int(materials)
	s.ChunksCount = int(chunks)

	return s, nil
}

// SaveDigest upserts a generated digest.
func (db *DB) SaveDigest(ctx context.Context, s domain.Success) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO digests (mode, category, period, analysis, materials_count, chunks_count, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (mode, category, period) DO UPDATE SET
			analysis = EXCLUDED.analysis,
			materials_count = EXCLUDED.materials_count,
			chunks_count = EXCLUDED.chunks_count,
			model = EXCLUDED.model,
			created_at = EXCLUDED.created_at
	`, s.Mode.String(), s.Category, s.Period, SanitizeUTF8(s.Analysis),
		clampInt32(s.MaterialsCount), clampInt32(s.ChunksCount), s.Model, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save digest: %w", err)
	}

	return nil
}

// DeleteDigestsBefore drops digests generated before t and returns how many.
func (db *DB) DeleteDigestsBefore(ctx context.Context, t time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM digests WHERE created_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("delete old digests: %w", err)
	}

	return tag.RowsAffected(), nil
}
