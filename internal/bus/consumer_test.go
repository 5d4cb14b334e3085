package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/logging"
)

func TestStartOffsetFor_Earliest(t *testing.T) {
	assert.Equal(t, int64(kafka.FirstOffset), startOffsetFor("earliest"))
}

func TestStartOffsetFor_Latest(t *testing.T) {
	assert.Equal(t, int64(kafka.LastOffset), startOffsetFor("latest"))
}

func TestStartOffsetFor_DefaultsToLatest(t *testing.T) {
	assert.Equal(t, int64(kafka.LastOffset), startOffsetFor(""))
}

// fakeCursorStore lets resolveStartOffset's tests avoid a live Postgres,
// matching internal/messaging's failure-injection style of faking a
// collaborator rather than standing up the real dependency.
type fakeCursorStore struct {
	offset int64
	found  bool
	err    error
}

func (f *fakeCursorStore) LoadCursor(ctx context.Context, topic string, partition int, groupID string) (int64, bool, error) {
	return f.offset, f.found, f.err
}

func TestResolveStartOffset_BusModeIgnoresStore(t *testing.T) {
	c := &Consumer{cfg: Config{CursorMode: "bus"}, cursors: &fakeCursorStore{offset: 41, found: true}}
	assert.Equal(t, int64(7), c.resolveStartOffset(context.Background(), "orders.order.created", 0, 7))
}

func TestResolveStartOffset_StoreModeUsesCursorPlusOne(t *testing.T) {
	c := &Consumer{cfg: Config{CursorMode: "store"}, cursors: &fakeCursorStore{offset: 41, found: true}}
	assert.Equal(t, int64(42), c.resolveStartOffset(context.Background(), "orders.order.created", 0, 7))
}

func TestResolveStartOffset_StoreModeNoCursorFallsBack(t *testing.T) {
	c := &Consumer{cfg: Config{CursorMode: "store"}, cursors: &fakeCursorStore{found: false}}
	assert.Equal(t, int64(7), c.resolveStartOffset(context.Background(), "orders.order.created", 0, 7))
}

func TestResolveStartOffset_StoreModeLoadErrorFallsBack(t *testing.T) {
	c := &Consumer{cfg: Config{CursorMode: "store"}, cursors: &fakeCursorStore{err: errors.New("connection refused")}, logger: logging.NewDevelopment("bus-test")}
	assert.Equal(t, int64(7), c.resolveStartOffset(context.Background(), "orders.order.created", 0, 7))
}

func TestResolveStartOffset_NilCursorStoreFallsBack(t *testing.T) {
	c := &Consumer{cfg: Config{CursorMode: "store"}, cursors: nil}
	assert.Equal(t, int64(7), c.resolveStartOffset(context.Background(), "orders.order.created", 0, 7))
}
