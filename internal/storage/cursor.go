package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const upsertCursorSQL = `
	INSERT INTO partition_cursors (topic, partition, group_id, "offset")
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (topic, partition, group_id) DO UPDATE SET "offset" = EXCLUDED."offset"
	WHERE partition_cursors."offset" < EXCLUDED."offset"
`

// CommitCursor records the highest offset durably accounted for on a
// partition as a standalone statement on the pool, outside any transaction;
// CommitCursorTx is the variant Persist uses when CURSOR_MODE=store
// (spec.md §9). It is a no-op if the stored offset
// is already >= the one given, so replays of an already-committed range
// never move the cursor backwards.
func (s *Store) CommitCursor(ctx context.Context, topic string, partition int, groupID string, offset int64) error {
	_, err := s.conn.ExecContext(ctx, upsertCursorSQL, topic, partition, groupID, offset)
	if err != nil {
		return fmt.Errorf("commit cursor %s/%d: %w", topic, partition, err)
	}
	return nil
}

// CommitCursorTx is CommitCursor run inside an existing transaction, used by
// the store-co-located cursor mode so the cursor advance and the event
// insert succeed or fail atomically.
func CommitCursorTx(ctx context.Context, tx *sql.Tx, topic string, partition int, groupID string, offset int64) error {
	_, err := tx.ExecContext(ctx, upsertCursorSQL, topic, partition, groupID, offset)
	if err != nil {
		return fmt.Errorf("commit cursor %s/%d: %w", topic, partition, err)
	}
	return nil
}

const selectCursorSQL = `
	SELECT "offset" FROM partition_cursors WHERE topic = $1 AND partition = $2 AND group_id = $3
`

// LoadCursor returns the last committed offset for a partition, or
// (0, false) if none has ever been committed — the consumer then falls back
// to the offset its consumer-group generation assigned (spec.md §9).
func (s *Store) LoadCursor(ctx context.Context, topic string, partition int, groupID string) (int64, bool, error) {
	var offset int64
	err := s.conn.QueryRowContext(ctx, selectCursorSQL, topic, partition, groupID).Scan(&offset)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load cursor %s/%d: %w", topic, partition, err)
	}
	return offset, true, nil
}
