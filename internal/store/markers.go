package store

import (
	"context"
	"fmt"
	"time"
)

// IsProcessed reports whether an event with (kind, key) was marked done.
func (s *Store) IsProcessed(ctx context.Context, kind, key string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM processed_events WHERE kind = ? AND event_key = ?
	`, kind, key)
	if err != nil {
		return false, fmt.Errorf("check processed %s/%s: %w", kind, key, err)
	}
	return count > 0, nil
}

// MarkProcessed records (kind, key) as done. Uses ON CONFLICT DO NOTHING for
// idempotency; inserted is false if the marker already existed.
func (s *Store) MarkProcessed(ctx context.Context, kind, key string) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_events (kind, event_key, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(kind, event_key) DO NOTHING
	`, kind, key, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("mark processed %s/%s: %w", kind, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processed %s/%s: rows affected: %w", kind, key, err)
	}
	return n > 0, nil
}
