package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"thirdcoast.systems/streamvault/internal/model"
)

const subscriptionCols = `id, url, name, interval_minutes, resolution,
	last_checked, last_triggered, enabled`

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var sub model.Subscription
	err := row.Scan(
		&sub.ID, &sub.URL, &sub.Name, &sub.IntervalMinutes, &sub.Resolution,
		&sub.LastChecked, &sub.LastTriggered, &sub.Enabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (s *Store) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE id = $1`, id)
	return scanSubscription(row)
}

func (s *Store) ListSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			name = EXCLUDED.name,
			interval_minutes = EXCLUDED.interval_minutes,
			resolution = EXCLUDED.resolution,
			last_checked = EXCLUDED.last_checked,
			last_triggered = EXCLUDED.last_triggered,
			enabled = EXCLUDED.enabled`,
		sub.ID, sub.URL, sub.Name, sub.IntervalMinutes, sub.Resolution,
		sub.LastChecked, sub.LastTriggered, sub.Enabled,
	)
	if err != nil {
		return fmt.Errorf("store: upsert subscription %s: %w", sub.ID, err)
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	return err
}
