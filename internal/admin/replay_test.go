package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
)

type fakeDeadLetterStore struct {
	dl             *event.DeadLetterRecord
	exists         bool
	recordedOutcome string
}

func (f *fakeDeadLetterStore) GetDeadLetter(ctx context.Context, id int64) (*event.DeadLetterRecord, error) {
	return f.dl, nil
}

func (f *fakeDeadLetterStore) EventExists(ctx context.Context, eventID string) (bool, error) {
	return f.exists, nil
}

func (f *fakeDeadLetterStore) RecordReplayOutcome(ctx context.Context, id int64, kind string) error {
	f.recordedOutcome = kind
	return nil
}

func sampleDL() *event.DeadLetterRecord {
	return &event.DeadLetterRecord{
		ID:          7,
		Topic:       "orders.order.created",
		Partition:   0,
		Offset:      42,
		Key:         "ORD-1",
		RawPayload:  []byte(`{"event_id":"11111111-1111-1111-1111-111111111111"}`),
		ErrorKind:   "ValidationError",
		ErrorDetail: "missing field",
		FirstSeen:   time.Now(),
	}
}

func TestReplay_SkipsWhenEventAlreadyExists(t *testing.T) {
	store := &fakeDeadLetterStore{dl: sampleDL(), exists: true}
	called := false
	r := NewReplayer(store, func(ctx context.Context, raw []byte, coords event.BusCoordinates) (bool, bool, string) {
		called = true
		return true, false, "Committed"
	})

	result, err := r.Replay(t.Context(), 7, false)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.False(t, called)
}

func TestReplay_ForceReprocessBypassesSkipCheck(t *testing.T) {
	store := &fakeDeadLetterStore{dl: sampleDL(), exists: true}
	r := NewReplayer(store, func(ctx context.Context, raw []byte, coords event.BusCoordinates) (bool, bool, string) {
		return true, false, "Duplicate"
	})

	result, err := r.Replay(t.Context(), 7, true)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, "Duplicate", result.Kind)
	assert.Equal(t, "Duplicate", store.recordedOutcome)
}

func TestReplay_DispatchesWhenEventDoesNotExist(t *testing.T) {
	store := &fakeDeadLetterStore{dl: sampleDL(), exists: false}
	var gotCoords event.BusCoordinates
	r := NewReplayer(store, func(ctx context.Context, raw []byte, coords event.BusCoordinates) (bool, bool, string) {
		gotCoords = coords
		return true, false, "Committed"
	})

	result, err := r.Replay(t.Context(), 7, false)
	require.NoError(t, err)
	assert.Equal(t, "Committed", result.Kind)
	assert.Equal(t, "orders.order.created", gotCoords.Topic)
	assert.Equal(t, int64(42), gotCoords.Offset)
}
