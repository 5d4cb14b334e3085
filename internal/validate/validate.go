// Package validate implements the Validator (spec.md §4.3): structural
// conformance of an envelope against its validator struct tags plus the
// topic's registered schema.Descriptor, and the timestamp-skew check.
package validate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/schema"
)

// Code enumerates the distinct ways a message can fail validation, used by
// the Dispatcher to build the ValidationError recorded against the dead
// letter (spec.md §4.5).
type Code string

const (
	CodeStructural     Code = "StructuralViolation"
	CodeMissingKey     Code = "MissingRequiredKey"
	CodeWrongType      Code = "WrongFieldType"
	CodeTimestampSkew  Code = "TimestampSkew"
	CodeSchemaNotFound Code = "SchemaNotFound"
)

// Error is the Validator's single error type. Field is empty for
// envelope-wide failures (e.g. timestamp skew).
type Error struct {
	Code    Code
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validate: %s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("validate: %s: %s", e.Code, e.Message)
}

// SkewConfig bounds how far into the past or future an event's timestamp may
// sit relative to wall-clock ingestion time (spec.md §4.3).
type SkewConfig struct {
	MaxPast   time.Duration
	MaxFuture time.Duration
}

// Validator checks envelopes against both go-playground struct tags and the
// topic registry's declared payload shape.
type Validator struct {
	v    *validator.Validate
	skew SkewConfig
}

// New builds a Validator with the given timestamp-skew tolerance.
func New(skew SkewConfig) *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled()), skew: skew}
}

// Validate runs struct-tag validation on the envelope, then checks the
// payload against desc's required keys and field types, then checks
// timestamp skew against now. The first failure found is returned; the
// Validator does not attempt to accumulate every fault in one message.
func (val *Validator) Validate(env *event.Envelope, desc schema.Descriptor, now time.Time) *Error {
	if err := val.v.Struct(env); err != nil {
		return structuralError(err)
	}

	if err := checkPayloadShape(env.Payload, desc); err != nil {
		return err
	}

	if err := val.checkSkew(env.Timestamp, now); err != nil {
		return err
	}

	return nil
}

func structuralError(err error) *Error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return &Error{
			Code:    CodeStructural,
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
		}
	}
	return &Error{Code: CodeStructural, Message: err.Error()}
}

func checkPayloadShape(payload json.RawMessage, desc schema.Descriptor) *Error {
	var body map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			return &Error{Code: CodeStructural, Message: "payload is not a JSON object"}
		}
	}

	for _, key := range desc.RequiredKeys {
		if _, ok := body[key]; !ok {
			return &Error{Code: CodeMissingKey, Field: key, Message: "required payload key absent"}
		}
	}

	for field, want := range desc.FieldTypes {
		val, present := body[field]
		if !present {
			continue
		}
		if !matchesType(val, want) {
			return &Error{Code: CodeWrongType, Field: field, Message: fmt.Sprintf("expected %s", want)}
		}
	}

	return nil
}

func matchesType(v any, want schema.FieldType) bool {
	switch want {
	case schema.FieldString:
		_, ok := v.(string)
		return ok
	case schema.FieldNumber:
		_, ok := v.(float64)
		return ok
	case schema.FieldBool:
		_, ok := v.(bool)
		return ok
	case schema.FieldObject:
		_, ok := v.(map[string]any)
		return ok
	case schema.FieldArray:
		_, ok := v.([]any)
		return ok
	case schema.FieldAny:
		return true
	default:
		return true
	}
}

func (val *Validator) checkSkew(ts, now time.Time) *Error {
	if val.skew.MaxPast > 0 && ts.Before(now.Add(-val.skew.MaxPast)) {
		return &Error{Code: CodeTimestampSkew, Message: "timestamp too far in the past"}
	}
	if val.skew.MaxFuture > 0 && ts.After(now.Add(val.skew.MaxFuture)) {
		return &Error{Code: CodeTimestampSkew, Message: "timestamp too far in the future"}
	}
	return nil
}
