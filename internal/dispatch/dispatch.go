// Package dispatch implements the Dispatcher (spec.md §4.8): the per-message
// state machine that owns intra-partition ordering and decides whether a
// message ends up Committed or DeadLettered.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/deserialize"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/logging"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/messaging"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/metrics"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/schema"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/storage"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/validate"
)

// State names the Dispatcher's state machine (spec.md §4.8). It exists for
// logging/observability; control flow does not switch on it directly.
type State string

const (
	StateReceived     State = "Received"
	StateRouted       State = "Routed"
	StateDeserialized State = "Deserialized"
	StateValidated    State = "Validated"
	StatePersisted    State = "Persisted"
	StateRetrying     State = "Retrying"
	StateDeadLettered State = "DeadLettered"
	StateCommitted    State = "Committed"
)

// Persister is the subset of storage.Store the Dispatcher depends on.
type Persister interface {
	Persist(ctx context.Context, r *event.Record, cursor storage.CursorCommit) (storage.PersistOutcome, error)
	InsertDeadLetter(ctx context.Context, dl *event.DeadLetterRecord) (int64, error)
}

// Dispatcher wires the Topic Router, Deserializer, Validator, Persister,
// DLQ Sink, and Metrics Recorder into the single-message pipeline.
type Dispatcher struct {
	registry   *schema.Registry
	validator  *validate.Validator
	store      Persister
	recorder   *metrics.Recorder
	logger     *logging.Logger
	retry      messaging.RetryConfig
	cursorMode string
	groupID    string
}

// New builds a Dispatcher. cursorMode/groupID select spec.md §9's cursor
// co-location behavior: "store" advances partition_cursors inside the same
// transaction as the event insert; "bus" leaves cursor tracking to the
// broker's externalized offset storage alone.
func New(registry *schema.Registry, validator *validate.Validator, store Persister, recorder *metrics.Recorder, logger *logging.Logger, retry messaging.RetryConfig, cursorMode, groupID string) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		validator:  validator,
		store:      store,
		recorder:   recorder,
		logger:     logger,
		retry:      retry,
		cursorMode: cursorMode,
		groupID:    groupID,
	}
}

// Outcome is the terminal result of dispatching one message, reported back
// to the Consumer Loop so it knows it may advance the cursor.
type Outcome struct {
	Committed    bool
	DeadLettered bool
	Kind         string
}

// Dispatch runs one message through the full state machine. It always
// returns a terminal Outcome — the pipeline never halts a partition on an
// unfixable message (spec.md §4.8).
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte, coords event.BusCoordinates) Outcome {
	start := time.Now()

	desc, ok := d.registry.Lookup(coords.Topic)
	if !ok {
		committed := d.deadLetter(ctx, coords, raw, "", "UnknownTopic", "no schema registered for topic")
		d.record("", coords.Topic, event.OutcomeUnknown, start)
		return Outcome{DeadLettered: true, Committed: committed, Kind: "UnknownTopic"}
	}

	env, derr := deserialize.Deserialize(raw)
	if derr != nil {
		committed := d.deadLetter(ctx, coords, raw, desc.EventType, "DeserializeError", derr.Error())
		d.record(desc.EventType, coords.Topic, event.OutcomeUnknown, start)
		return Outcome{DeadLettered: true, Committed: committed, Kind: "DeserializeError"}
	}

	if verr := d.validator.Validate(env, desc, time.Now()); verr != nil {
		committed := d.deadLetter(ctx, coords, raw, desc.EventType, "ValidationError", verr.Error())
		d.record(desc.EventType, coords.Topic, event.OutcomeValidationFailed, start)
		return Outcome{DeadLettered: true, Committed: committed, Kind: "ValidationError"}
	}

	record := event.RecordFromEnvelope(env, coords)
	outcome, persistErr := d.persistWithRetry(ctx, record, coords)

	switch outcome {
	case storage.OutcomeCommitted, storage.OutcomeDuplicate:
		d.record(desc.EventType, coords.Topic, event.OutcomeSuccess, start)
		return Outcome{Committed: true, Kind: string(outcome)}
	case storage.OutcomeVersionConflict:
		committed := d.deadLetter(ctx, coords, raw, desc.EventType, "VersionConflict", "aggregate/version already claimed by a different event_id")
		d.record(desc.EventType, coords.Topic, event.OutcomePersistFailed, start)
		return Outcome{DeadLettered: true, Committed: committed, Kind: "VersionConflict"}
	default:
		kind, detail := persistFailureDisposition(persistErr)
		committed := d.deadLetter(ctx, coords, raw, desc.EventType, kind, detail)
		d.record(desc.EventType, coords.Topic, event.OutcomePersistFailed, start)
		return Outcome{DeadLettered: true, Committed: committed, Kind: kind}
	}
}

// persistFailureDisposition names the dead-letter error_kind for a persist
// attempt that never reached Committed/Duplicate/VersionConflict. Most of
// these exhausted the TransientStoreError retry budget, but
// messaging.Classify may also surface ErrPermanent (e.g. a check-constraint
// violation unrelated to event_id/version uniqueness) that persistWithRetry
// never retried in the first place — mislabeling that as "TransientStoreError"
// would send an operator chasing a retry-budget problem that was never one
// (spec.md §7 "operators see DLQ growth as the single indicator").
func persistFailureDisposition(err error) (kind, detail string) {
	if err == nil {
		return "TransientStoreError", "retries exhausted against the store"
	}
	if messaging.Classify(err) == messaging.ErrPermanent {
		return "PersistError", err.Error()
	}
	return "TransientStoreError", fmt.Sprintf("retries exhausted against the store: %s", err.Error())
}

// persistWithRetry retries transient store failures with bounded backoff
// (spec.md §4.4, §4.8). Duplicate, VersionConflict, and Committed are all
// terminal on the first attempt; only a transient error loops, and an open
// circuit breaker (storage.ErrCircuitOpen) ends the loop at once. The returned
// error is nil on any terminal outcome and non-nil only when the store
// genuinely never resolved the message — callers use messaging.Classify on
// it to tell a retry-budget exhaustion from a non-retryable store error
// that was dead-lettered without ever being retried.
func (d *Dispatcher) persistWithRetry(ctx context.Context, r *event.Record, coords event.BusCoordinates) (storage.PersistOutcome, error) {
	var cursor storage.CursorCommit
	if d.cursorMode == "store" {
		cursor = storage.CursorCommit{GroupID: d.groupID, Partition: coords.Partition, Offset: coords.Offset}
	}

	for attempt := 0; ; attempt++ {
		outcome, err := d.store.Persist(ctx, r, cursor)
		if err == nil {
			return outcome, nil
		}

		if errors.Is(err, storage.ErrCircuitOpen) {
			// The breaker is open because the store already failed repeatedly;
			// dead-letter now instead of backing off against it.
			d.logger.Warn("persist refused by open circuit breaker, giving up", map[string]any{
				"event_id": r.EventID, "attempt": attempt, "error": err.Error(),
			})
			return storage.OutcomeFailed, err
		}

		kind := messaging.Classify(err)
		if !d.retry.ShouldRetry(kind, attempt) {
			d.logger.Warn("persist failed, giving up", map[string]any{
				"event_id": r.EventID, "attempt": attempt, "error": err.Error(),
			})
			return storage.OutcomeFailed, err
		}
		d.logger.Warn("persist failed, retrying", map[string]any{
			"event_id": r.EventID, "attempt": attempt, "error": err.Error(),
		})
		if sleepErr := d.retry.Sleep(ctx, attempt); sleepErr != nil {
			return outcome, err
		}
	}
}

// deadLetter writes the dead-letter row and reports whether the message may
// be considered Committed for cursor purposes. A failed DLQ insert must NOT
// advance the cursor (spec.md §4.5): the message is re-fetched by the bus
// on the next poll instead.
func (d *Dispatcher) deadLetter(ctx context.Context, coords event.BusCoordinates, raw []byte, schemaName, kind, detail string) bool {
	_, err := d.store.InsertDeadLetter(ctx, &event.DeadLetterRecord{
		Topic:           coords.Topic,
		Partition:       coords.Partition,
		Offset:          coords.Offset,
		Key:             coords.Key,
		RawPayload:      raw,
		SchemaAttempted: schemaName,
		ErrorKind:       kind,
		ErrorDetail:     detail,
	})
	if err != nil {
		d.logger.Error("dead letter insert failed", map[string]any{
			"topic": coords.Topic, "partition": coords.Partition, "offset": coords.Offset, "error": err.Error(),
		})
		return false
	}
	return true
}

func (d *Dispatcher) record(eventType, topic string, outcome event.Outcome, start time.Time) {
	if d.recorder == nil {
		return
	}
	d.recorder.Record(&event.ProcessingMetric{
		EventType:        eventType,
		Topic:            topic,
		Outcome:          outcome,
		ProcessingTimeMS: float64(time.Since(start).Microseconds()) / 1000.0,
	})
}
