// Package deserialize implements the Deserializer (spec.md §4.2): turning a
// raw bus message into an event.Envelope without ever tripping on a
// forward-compatible payload field it doesn't recognize.
package deserialize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
)

// Kind classifies why deserialization failed, mirroring the error-kind
// taxonomy the rest of the pipeline uses to decide retry vs. dead-letter
// (spec.md §7).
type Kind string

const (
	KindMalformedJSON  Kind = "MalformedJSON"
	KindMissingField   Kind = "MissingField"
	KindWrongFieldType Kind = "WrongFieldType"
)

// Error reports a deserialization failure with enough detail for the dead
// letter record (spec.md §4.5): which field, what went wrong, and — for a
// malformed-JSON failure — the byte offset into raw where the decoder gave
// up (spec.md §4.2 "byte offset / field name when available").
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Offset  int64
}

func (e *Error) Error() string {
	if e.Offset != 0 {
		return fmt.Sprintf("deserialize: %s: byte %d: %s", e.Kind, e.Offset, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("deserialize: %s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("deserialize: %s: %s", e.Kind, e.Message)
}

// wireEnvelope mirrors event.Envelope's JSON shape but keeps every framing
// field as a pointer/raw value so a missing key produces a MissingField
// error naming that exact key, rather than a zero-valued string silently
// passing through.
type wireEnvelope struct {
	EventID       *string         `json:"event_id"`
	EventType     *string         `json:"event_type"`
	AggregateID   *string         `json:"aggregate_id"`
	AggregateType *string         `json:"aggregate_type"`
	Version       *int            `json:"version"`
	Timestamp     *string         `json:"timestamp"`
	Source        *string         `json:"source"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id"`
	UserID        string          `json:"user_id"`
	Payload       json.RawMessage `json:"payload"`
}

var requiredFrameFields = []string{
	"event_id", "event_type", "aggregate_id", "aggregate_type",
	"version", "timestamp", "source",
}

// Deserialize parses raw bus message bytes into an event.Envelope. The
// payload sub-object is preserved as raw bytes (event.Envelope.Payload) and
// is never required to match any particular shape here — that is the
// Validator's job against the topic's schema.Descriptor.
func Deserialize(raw []byte) (*event.Envelope, *Error) {
	var w wireEnvelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return nil, &Error{Kind: KindMalformedJSON, Message: err.Error(), Offset: decodeOffset(err, dec)}
	}

	missing := missingFrameField(&w)
	if missing != "" {
		return nil, &Error{Kind: KindMissingField, Field: missing, Message: "required envelope field absent"}
	}

	ts, err := parseTimestamp(*w.Timestamp)
	if err != nil {
		return nil, &Error{Kind: KindWrongFieldType, Field: "timestamp", Message: err.Error()}
	}

	env := &event.Envelope{
		EventID:       *w.EventID,
		EventType:     *w.EventType,
		AggregateID:   *w.AggregateID,
		AggregateType: *w.AggregateType,
		Version:       *w.Version,
		Timestamp:     ts,
		Source:        *w.Source,
		CorrelationID: w.CorrelationID,
		CausationID:   w.CausationID,
		UserID:        w.UserID,
		Payload:       w.Payload,
	}
	return env, nil
}

// decodeOffset recovers the byte offset a json.Decoder failure occurred at.
// json.SyntaxError and json.UnmarshalTypeError both carry their own Offset;
// anything else falls back to how far the decoder's token stream got.
func decodeOffset(err error, dec *json.Decoder) int64 {
	switch e := err.(type) {
	case *json.SyntaxError:
		return e.Offset
	case *json.UnmarshalTypeError:
		return e.Offset
	default:
		return dec.InputOffset()
	}
}

func missingFrameField(w *wireEnvelope) string {
	if w.EventID == nil {
		return "event_id"
	}
	if w.EventType == nil {
		return "event_type"
	}
	if w.AggregateID == nil {
		return "aggregate_id"
	}
	if w.AggregateType == nil {
		return "aggregate_type"
	}
	if w.Version == nil {
		return "version"
	}
	if w.Timestamp == nil {
		return "timestamp"
	}
	if w.Source == nil {
		return "source"
	}
	return ""
}
