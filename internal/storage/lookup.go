package storage

import (
	"context"
	"fmt"
)

const existsEventSQL = `SELECT EXISTS(SELECT 1 FROM events WHERE event_id = $1)`

// EventExists reports whether an event_id has already been durably
// recorded, used by the DLQ replay path's non-forced skip-check.
func (s *Store) EventExists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	if err := s.conn.QueryRowContext(ctx, existsEventSQL, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check event exists %s: %w", eventID, err)
	}
	return exists, nil
}
