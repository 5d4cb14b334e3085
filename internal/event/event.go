// Package event holds the data model shared by every pipeline stage
// (spec.md §3): the wire envelope, the canonical audit-store record, the
// dead-letter record, and the processing metric.
package event

import (
	"encoding/json"
	"time"
)

// Envelope is the producer-facing wire shape (spec.md §6): the fixed framing
// fields around every event plus its opaque, type-specific payload. Payload
// is kept as json.RawMessage so it round-trips byte-for-byte into event_data
// (spec.md §9) — it is never re-marshaled on the way to the store.
type Envelope struct {
	EventID       string          `json:"event_id" validate:"required,uuid"`
	EventType     string          `json:"event_type" validate:"required"`
	AggregateID   string          `json:"aggregate_id" validate:"required"`
	AggregateType string          `json:"aggregate_type" validate:"required"`
	Version       int             `json:"version" validate:"required,gte=1"`
	Timestamp     time.Time       `json:"timestamp" validate:"required"`
	Source        string          `json:"source" validate:"required"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// BusCoordinates identifies exactly where a message came from on the bus.
type BusCoordinates struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
}

// Record is the canonical audit-log entry (EventRecord, spec.md §3). It is
// created once at successful ingestion and never mutated.
type Record struct {
	ID            int64           `db:"id"`
	EventID       string          `db:"event_id"`
	EventType     string          `db:"event_type"`
	AggregateID   string          `db:"aggregate_id"`
	AggregateType string          `db:"aggregate_type"`
	Version       int             `db:"version"`
	Timestamp     time.Time       `db:"timestamp"`
	Source        string          `db:"source"`
	Topic         string          `db:"topic"`
	Partition     int             `db:"partition"`
	Offset        int64           `db:"offset"`
	EventData     json.RawMessage `db:"event_data"`
	CorrelationID *string         `db:"correlation_id"`
	CausationID   *string         `db:"causation_id"`
	UserID        *string         `db:"user_id"`
	CreatedAt     time.Time       `db:"created_at"`
}

// RecordFromEnvelope builds the store-bound Record from a validated envelope
// and its bus coordinates. event_data is the envelope's raw payload bytes,
// preserved verbatim.
func RecordFromEnvelope(env *Envelope, coords BusCoordinates) *Record {
	r := &Record{
		EventID:       env.EventID,
		EventType:     env.EventType,
		AggregateID:   env.AggregateID,
		AggregateType: env.AggregateType,
		Version:       env.Version,
		Timestamp:     env.Timestamp.UTC(),
		Source:        env.Source,
		Topic:         coords.Topic,
		Partition:     coords.Partition,
		Offset:        coords.Offset,
		EventData:     env.Payload,
	}
	if env.CorrelationID != "" {
		r.CorrelationID = &env.CorrelationID
	}
	if env.CausationID != "" {
		r.CausationID = &env.CausationID
	}
	if env.UserID != "" {
		r.UserID = &env.UserID
	}
	return r
}

// DeadLetterRecord captures a message the pipeline refused to persist
// (spec.md §3). An operator-driven replay increments RetryCount and sets
// LastRetryOutcome; a replay that dead-letters the message again also
// overwrites ErrorKind and ErrorDetail.
type DeadLetterRecord struct {
	ID               int64     `db:"id"`
	Topic            string    `db:"topic"`
	Partition        int       `db:"partition"`
	Offset           int64     `db:"offset"`
	Key              string    `db:"key"`
	RawPayload       []byte    `db:"raw_payload"`
	SchemaAttempted  string    `db:"schema_attempted"`
	ErrorKind        string    `db:"error_kind"`
	ErrorDetail      string    `db:"error_detail"`
	FirstSeen        time.Time `db:"first_seen"`
	RetryCount       int       `db:"retry_count"`
	LastRetryOutcome *string   `db:"last_retry_outcome"`
}

// Outcome is the terminal classification of a metrics-recorded message.
type Outcome string

const (
	OutcomeSuccess          Outcome = "Success"
	OutcomeValidationFailed Outcome = "ValidationFailed"
	OutcomePersistFailed    Outcome = "PersistFailed"
	OutcomeUnknown          Outcome = "Unknown"
)

// ProcessingMetric is a per-message counter record (spec.md §3). It is
// best-effort: never coupled to event durability (spec.md §9).
type ProcessingMetric struct {
	ID                int64     `db:"id"`
	EventType         string    `db:"event_type"`
	Topic             string    `db:"topic"`
	Outcome           Outcome   `db:"outcome"`
	ProcessingTimeMS  float64   `db:"processing_time_ms"`
	CreatedAt         time.Time `db:"created_at"`
}

// PartitionCursor is the highest bus offset durably accounted for on a given
// (topic, partition, consumer group) — spec.md §3.
type PartitionCursor struct {
	Topic     string `db:"topic"`
	Partition int    `db:"partition"`
	GroupID   string `db:"group_id"`
	Offset    int64  `db:"offset"`
}
