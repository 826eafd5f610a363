package db

import (
	"context"
	"fmt"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
)

// Subscribe adds a category to the user's daily digest. It returns false when
// the user was already subscribed.
func (db *DB) Subscribe(ctx context.Context, userID int64, category string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO subscriptions (user_id, category) VALUES ($1, $2)
		ON CONFLICT (user_id, category) DO NOTHING
	`, userID, category)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Unsubscribe removes a category. It returns false when there was nothing to remove.
func (db *DB) Unsubscribe(ctx context.Context, userID int64, category string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM subscriptions WHERE user_id = $1 AND category = $2`, userID, category)
	if err != nil {
		return false, fmt.Errorf("unsubscribe: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// GetSubscription returns the categories a user is subscribed to.
func (db *DB) GetSubscription(ctx context.Context, userID int64) (domain.Subscription, error) {
	rows, err := db.Pool.Query(ctx, `SELECT category FROM subscriptions WHERE user_id = $1 ORDER BY category`, userID)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	defer rows.Close()

	sub := domain.Subscription{UserID: userID}

	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return domain.Subscription{}, fmt.Errorf(errFmtScanRow, "subscription", err)
		}

		sub.Categories = append(sub.Categories, category)
	}

	if err := rows.Err(); err != nil {
		return domain.Subscription{}, fmt.Errorf("iterate subscription: %w", err)
	}

	return sub, nil
}

// ListSubscriptions returns every subscriber with their categories.
func (db *DB) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := db.Pool.Query(ctx, `SELECT user_id, category FROM subscriptions ORDER BY user_id, category`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscription

	for rows.Next() {
		var (
			userID   int64
			category string
		)

		if err := rows.Scan(&userID, &category); err != nil {
			return nil, fmt.Errorf(errFmtScanRow, "subscription", err)
		}

		if n := len(out); n > 0 && out[n-1].UserID == userID {
			out[n-1].Categories = append(out[n-1].Categories, category)
			continue
		}

		out = append(out, domain.Subscription{UserID: userID, Categories: []string{category}})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}

	return out, nil
}
