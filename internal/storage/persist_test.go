package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := &Store{conn: db, breaker: newTestBreaker()}
	return s, mock
}

func sampleRecord() *event.Record {
	return &event.Record{
		EventID:       "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		EventType:     "OrderCreated",
		AggregateID:   "order-123",
		AggregateType: "Order",
		Version:       1,
		Timestamp:     time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
		Source:        "orders-service",
		Topic:         "orders.order.created",
		Partition:     0,
		Offset:        42,
		EventData:     json.RawMessage(`{"order_id":"order-123"}`),
	}
}

func TestPersist_Committed(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	outcome, err := s.Persist(t.Context(), r, CursorCommit{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_DuplicateIsNoOp(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "events_event_id_key"})
	mock.ExpectRollback()

	outcome, err := s.Persist(t.Context(), r, CursorCommit{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestPersist_VersionConflict(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "events_aggregate_version_key"})
	mock.ExpectRollback()

	outcome, err := s.Persist(t.Context(), r, CursorCommit{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeVersionConflict, outcome)
}

func TestPersist_TransientFailureSurfacesError(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").
		WillReturnError(&pq.Error{Code: "08006"})
	mock.ExpectRollback()

	outcome, err := s.Persist(t.Context(), r, CursorCommit{})
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestPersist_VersionGapIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleRecord()
	r.Version = 3

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(r.AggregateType, r.AggregateID, int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	outcome, err := s.Persist(t.Context(), r, CursorCommit{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeVersionConflict, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_VersionGapFilledProceeds(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleRecord()
	r.Version = 2

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(r.AggregateType, r.AggregateID, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	outcome, err := s.Persist(t.Context(), r, CursorCommit{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_NoRowsAffectedIsDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	outcome, err := s.Persist(t.Context(), r, CursorCommit{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}
