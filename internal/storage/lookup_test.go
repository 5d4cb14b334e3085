package storage

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventExists_True(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.EventExists(t.Context(), "3fa85f64-5717-4562-b3fc-2c963f66afa6")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventExists_False(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := s.EventExists(t.Context(), "not-there")
	require.NoError(t, err)
	assert.False(t, ok)
}
