package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
)

const insertDeadLetterSQL = `
	INSERT INTO dead_letters (
		topic, partition, "offset", key, raw_payload,
		schema_attempted, error_kind, error_detail
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (topic, partition, "offset") DO UPDATE SET
		error_kind = EXCLUDED.error_kind,
		error_detail = EXCLUDED.error_detail
	RETURNING id
`

// InsertDeadLetter records a message the pipeline refused to persist
// (spec.md §4.5). Dead-lettering the same bus coordinates again (e.g. a
// failed replay) overwrites error_kind/error_detail on the existing row
// instead of creating a second one; retry_count is left to
// RecordReplayOutcome.
func (s *Store) InsertDeadLetter(ctx context.Context, dl *event.DeadLetterRecord) (int64, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx, insertDeadLetterSQL,
		dl.Topic, dl.Partition, dl.Offset, dl.Key, dl.RawPayload,
		dl.SchemaAttempted, dl.ErrorKind, dl.ErrorDetail,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert dead letter: %w", err)
	}
	return id, nil
}

const selectDeadLetterSQL = `
	SELECT id, topic, partition, "offset", key, raw_payload,
		schema_attempted, error_kind, error_detail, first_seen,
		retry_count, last_retry_outcome
	FROM dead_letters WHERE id = $1
`

// GetDeadLetter fetches a single dead-lettered message by id, for operator
// inspection and replay (spec.md §4.5).
func (s *Store) GetDeadLetter(ctx context.Context, id int64) (*event.DeadLetterRecord, error) {
	dl := &event.DeadLetterRecord{}
	var key sql.NullString
	var schemaAttempted sql.NullString
	var lastOutcome sql.NullString
	err := s.conn.QueryRowContext(ctx, selectDeadLetterSQL, id).Scan(
		&dl.ID, &dl.Topic, &dl.Partition, &dl.Offset, &key, &dl.RawPayload,
		&schemaAttempted, &dl.ErrorKind, &dl.ErrorDetail, &dl.FirstSeen,
		&dl.RetryCount, &lastOutcome,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter %d: %w", id, err)
	}
	dl.Key = key.String
	dl.SchemaAttempted = schemaAttempted.String
	if lastOutcome.Valid {
		s := lastOutcome.String
		dl.LastRetryOutcome = &s
	}
	return dl, nil
}

const updateDeadLetterOutcomeSQL = `
	UPDATE dead_letters SET last_retry_outcome = $2, retry_count = retry_count + 1 WHERE id = $1
`

// RecordReplayOutcome marks the result of an operator-triggered replay
// attempt (spec.md §4.5) and increments retry_count, without deleting the
// dead-letter row — the audit
// trail of the failure itself is never erased.
func (s *Store) RecordReplayOutcome(ctx context.Context, id int64, outcome string) error {
	_, err := s.conn.ExecContext(ctx, updateDeadLetterOutcomeSQL, id, outcome)
	if err != nil {
		return fmt.Errorf("record replay outcome for dead letter %d: %w", id, err)
	}
	return nil
}
