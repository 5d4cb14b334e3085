package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/messaging"
)

// PersistOutcome is the Persister's terminal classification of one attempt
// (spec.md §4.4).
type PersistOutcome string

const (
	OutcomeCommitted       PersistOutcome = "Committed"
	OutcomeDuplicate       PersistOutcome = "Duplicate"
	OutcomeVersionConflict PersistOutcome = "VersionConflict"
	OutcomeFailed          PersistOutcome = "Failed"
)

// ErrCircuitOpen surfaces when the store's circuit breaker has tripped and
// is refusing new attempts (spec.md §7: escalation past per-message retry).
var ErrCircuitOpen = gobreaker.ErrOpenState

const insertEventSQL = `
	INSERT INTO events (
		event_id, event_type, aggregate_id, aggregate_type, version,
		timestamp, source, topic, partition, "offset", event_data,
		correlation_id, causation_id, user_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (event_id, timestamp) DO NOTHING
`

const priorVersionExistsSQL = `
	SELECT EXISTS(
		SELECT 1 FROM events
		WHERE aggregate_type = $1 AND aggregate_id = $2 AND version = $3
	)
`

// CursorCommit carries the information needed to advance partition_cursors
// inside the same transaction as the event insert (spec.md §9 "store"
// co-location mode). A zero value (GroupID == "") means the caller is
// running in "bus" mode and no co-located cursor write happens.
type CursorCommit struct {
	GroupID   string
	Partition int
	Offset    int64
}

// Persist writes one audit record transactionally. A duplicate event_id is
// an idempotent no-op (spec.md §4.4 "Duplicate"); a unique violation on the
// aggregate/version constraint means the version-density invariant would be
// broken by this insert (spec.md §9 — gaps are rejected, not merely
// non-monotonic versions). Transient failures are routed through the
// circuit breaker so a failing store degrades the whole pipeline loudly
// rather than retrying forever per-message. When cursor is non-zero, the
// partition cursor advances in the same transaction (spec.md §9 "store"
// co-location mode); otherwise cursor tracking is left to the bus.
func (s *Store) Persist(ctx context.Context, r *event.Record, cursor CursorCommit) (PersistOutcome, error) {
	var txErr error
	outcome, err := s.breaker.Execute(func() (any, error) {
		o, e := s.persistTx(ctx, r, cursor)
		txErr = e
		// Only a transient failure should count against the breaker's
		// health tally — duplicates, version conflicts, and permanent
		// errors are message-shaped, not store-shaped.
		if e != nil && messaging.Classify(e) == messaging.ErrTransient {
			return o, e
		}
		return o, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return OutcomeFailed, ErrCircuitOpen
		}
		return OutcomeFailed, err
	}
	if txErr != nil {
		return outcome.(PersistOutcome), txErr
	}
	return outcome.(PersistOutcome), nil
}

func (s *Store) persistTx(ctx context.Context, r *event.Record, cursor CursorCommit) (PersistOutcome, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// spec.md §9 Open Questions: version density ("no gaps") is enforced
	// defensively here, not left to bare monotonicity — a producer that
	// skips straight to version 3 would otherwise leave a silent gap that
	// no unique constraint catches. version 1 never has a predecessor to
	// check.
	if r.Version > 1 {
		var priorExists bool
		if err := tx.QueryRowContext(ctx, priorVersionExistsSQL, r.AggregateType, r.AggregateID, r.Version-1).Scan(&priorExists); err != nil {
			return OutcomeFailed, fmt.Errorf("check prior version: %w", err)
		}
		if !priorExists {
			return OutcomeVersionConflict, nil
		}
	}

	res, err := tx.ExecContext(ctx, insertEventSQL,
		r.EventID, r.EventType, r.AggregateID, r.AggregateType, r.Version,
		r.Timestamp, r.Source, r.Topic, r.Partition, r.Offset, r.EventData,
		r.CorrelationID, r.CausationID, r.UserID,
	)
	if err != nil {
		switch messaging.Classify(err) {
		case messaging.ErrDuplicate:
			return OutcomeDuplicate, nil
		case messaging.ErrVersionConflict:
			return OutcomeVersionConflict, nil
		default:
			return OutcomeFailed, err
		}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return OutcomeFailed, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// ON CONFLICT DO NOTHING matched an existing row without raising.
		if err := tx.Commit(); err != nil {
			return OutcomeFailed, fmt.Errorf("commit no-op: %w", err)
		}
		return OutcomeDuplicate, nil
	}

	if cursor.GroupID != "" {
		if err := CommitCursorTx(ctx, tx, r.Topic, cursor.Partition, cursor.GroupID, cursor.Offset); err != nil {
			return OutcomeFailed, fmt.Errorf("commit cursor: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return OutcomeFailed, fmt.Errorf("commit: %w", err)
	}
	return OutcomeCommitted, nil
}

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = sql.ErrNoRows
