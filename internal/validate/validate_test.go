package validate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/schema"
)

func sampleEnv(t *testing.T, payload string, ts time.Time) *event.Envelope {
	t.Helper()
	return &event.Envelope{
		EventID:       "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		EventType:     "OrderCreated",
		AggregateID:   "order-123",
		AggregateType: "Order",
		Version:       1,
		Timestamp:     ts,
		Source:        "orders-service",
		Payload:       json.RawMessage(payload),
	}
}

var desc = schema.Descriptor{
	EventType:    "OrderCreated",
	RequiredKeys: []string{"order_id", "total_amount"},
	FieldTypes: map[string]schema.FieldType{
		"order_id":     schema.FieldString,
		"total_amount": schema.FieldNumber,
	},
}

func TestValidate_AcceptsWellFormedEvent(t *testing.T) {
	v := New(SkewConfig{MaxPast: 30 * 24 * time.Hour, MaxFuture: 5 * time.Minute})
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	env := sampleEnv(t, `{"order_id":"order-123","total_amount":42.5}`, now)

	err := v.Validate(env, desc, now)
	assert.Nil(t, err)
}

func TestValidate_RejectsMissingRequiredKey(t *testing.T) {
	v := New(SkewConfig{})
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	env := sampleEnv(t, `{"order_id":"order-123"}`, now)

	err := v.Validate(env, desc, now)
	require.NotNil(t, err)
	assert.Equal(t, CodeMissingKey, err.Code)
	assert.Equal(t, "total_amount", err.Field)
}

func TestValidate_RejectsWrongFieldType(t *testing.T) {
	v := New(SkewConfig{})
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	env := sampleEnv(t, `{"order_id":"order-123","total_amount":"not-a-number"}`, now)

	err := v.Validate(env, desc, now)
	require.NotNil(t, err)
	assert.Equal(t, CodeWrongType, err.Code)
	assert.Equal(t, "total_amount", err.Field)
}

func TestValidate_RejectsStructuralViolation(t *testing.T) {
	v := New(SkewConfig{})
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	env := sampleEnv(t, `{"order_id":"order-123","total_amount":1}`, now)
	env.EventID = "not-a-uuid"

	err := v.Validate(env, desc, now)
	require.NotNil(t, err)
	assert.Equal(t, CodeStructural, err.Code)
}

func TestValidate_RejectsTimestampTooOld(t *testing.T) {
	v := New(SkewConfig{MaxPast: 24 * time.Hour})
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	env := sampleEnv(t, `{"order_id":"order-123","total_amount":1}`, now.Add(-72*time.Hour))

	err := v.Validate(env, desc, now)
	require.NotNil(t, err)
	assert.Equal(t, CodeTimestampSkew, err.Code)
}

func TestValidate_RejectsTimestampTooFarFuture(t *testing.T) {
	v := New(SkewConfig{MaxFuture: time.Minute})
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	env := sampleEnv(t, `{"order_id":"order-123","total_amount":1}`, now.Add(time.Hour))

	err := v.Validate(env, desc, now)
	require.NotNil(t, err)
	assert.Equal(t, CodeTimestampSkew, err.Code)
}

func TestValidate_UnknownPayloadKeysPassThrough(t *testing.T) {
	v := New(SkewConfig{})
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	env := sampleEnv(t, `{"order_id":"order-123","total_amount":1,"future_field":"x"}`, now)

	err := v.Validate(env, desc, now)
	assert.Nil(t, err)
}
