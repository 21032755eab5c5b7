package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Store wraps a *sql.DB with the tracked-channel operations. It satisfies
// chat.TrackedSource.
type Store struct{ DB *sql.DB }

// TrackedChannels returns every tracked channel in insertion order.
func (s *Store) TrackedChannels(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT channel FROM tracked_channels ORDER BY added_at, channel`)
	if err != nil {
		return nil, fmt.Errorf("query tracked channels: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// AddTrackedChannel inserts a channel; adding one that is already tracked is
// a no-op. The caller is expected to pass a normalized name.
func (s *Store) AddTrackedChannel(ctx context.Context, channel string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO tracked_channels(channel) VALUES($1) ON CONFLICT(channel) DO NOTHING`, channel)
	if err != nil {
		return fmt.Errorf("add tracked channel %s: %w", channel, err)
	}
	return nil
}

// RemoveTrackedChannel deletes a channel and reports whether it was present.
func (s *Store) RemoveTrackedChannel(ctx context.Context, channel string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tracked_channels WHERE channel=$1`, channel)
	if err != nil {
		return false, fmt.Errorf("remove tracked channel %s: %w", channel, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
