package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
)

// DeadLetterStore is the subset of storage.Store the replay path needs.
type DeadLetterStore interface {
	GetDeadLetter(ctx context.Context, id int64) (*event.DeadLetterRecord, error)
	EventExists(ctx context.Context, eventID string) (bool, error)
	RecordReplayOutcome(ctx context.Context, id int64, kind string) error
}

// DispatchFunc is dispatch.Dispatcher.Dispatch's shape, named here to avoid
// admin depending on dispatch.Outcome's concrete type.
type DispatchFunc func(ctx context.Context, raw []byte, coords event.BusCoordinates) (committed, deadLettered bool, kind string)

// Replayer re-injects a dead-lettered message into the Dispatcher on
// operator request (spec.md §4.5). It is not automatic retry — the
// operator always names the specific dead-letter row.
type Replayer struct {
	store    DeadLetterStore
	dispatch DispatchFunc
}

// NewReplayer builds a Replayer.
func NewReplayer(store DeadLetterStore, dispatch DispatchFunc) *Replayer {
	return &Replayer{store: store, dispatch: dispatch}
}

// ReplayResult reports what happened to one replay request.
type ReplayResult struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// peekEventID extracts the event_id a raw dead-lettered payload claims,
// purely for the skip-check — it does not validate the message.
func peekEventID(raw []byte) string {
	var probe struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.EventID
}

// Replay loads dead letter id, optionally skips it if the same event_id is
// already durably recorded (the normal, non-forced path — spec.md §4.5),
// and otherwise hands the raw bytes back to the Dispatcher.
// force_reprocess bypasses only the pre-dispatch skip-check; the store's
// event_id uniqueness constraint still governs what actually lands as a
// new row.
func (r *Replayer) Replay(ctx context.Context, id int64, forceReprocess bool) (ReplayResult, error) {
	dl, err := r.store.GetDeadLetter(ctx, id)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("load dead letter %d: %w", id, err)
	}

	if !forceReprocess {
		if eventID := peekEventID(dl.RawPayload); eventID != "" {
			exists, err := r.store.EventExists(ctx, eventID)
			if err != nil {
				return ReplayResult{}, fmt.Errorf("check existing event for dead letter %d: %w", id, err)
			}
			if exists {
				return ReplayResult{Skipped: true, Reason: "event_id already durably recorded"}, nil
			}
		}
	}

	coords := event.BusCoordinates{Topic: dl.Topic, Partition: dl.Partition, Offset: dl.Offset, Key: dl.Key}
	_, _, kind := r.dispatch(ctx, dl.RawPayload, coords)

	if err := r.store.RecordReplayOutcome(ctx, id, kind); err != nil {
		return ReplayResult{Kind: kind}, fmt.Errorf("record replay outcome for dead letter %d: %w", id, err)
	}

	return ReplayResult{Kind: kind}, nil
}
