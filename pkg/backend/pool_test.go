package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewPool(KindMySQL, db, "test_pool", nil), mock
}

func TestPool_QueryReleasesConnection(t *testing.T) {
	p, mock := newMockPool(t)

	mock.ExpectQuery("SELECT 1 AS n").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))
	mock.ExpectClose()

	rows, err := p.Query(context.Background(), "SELECT 1 AS n")
	require.NoError(t, err)
	assert.Equal(t, []Row{{"n": int64(1)}}, rows)
	assert.Equal(t, 0, p.ActiveCount())

	require.NoError(t, p.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_QueryErrorReleasesConnection(t *testing.T) {
	p, mock := newMockPool(t)

	mock.ExpectQuery("SELECT broken").WillReturnError(errors.New("syntax error"))
	mock.ExpectClose()

	_, err := p.Query(context.Background(), "SELECT broken")
	require.Error(t, err)

	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "mysql", qerr.Kind)
	assert.Contains(t, err.Error(), "syntax error")
	assert.Equal(t, 0, p.ActiveCount())

	require.NoError(t, p.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_CloseForceClosesActiveConnections(t *testing.T) {
	p, mock := newMockPool(t)
	mock.ExpectClose()

	conn, err := p.borrow(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, 1, p.ActiveCount())

	require.NoError(t, p.Close())
	assert.Equal(t, 0, p.ActiveCount())

	// releasing after close must not panic or re-register
	p.release(conn)
	assert.Equal(t, 0, p.ActiveCount())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_UseAfterClose(t *testing.T) {
	p, mock := newMockPool(t)
	mock.ExpectClose()

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "second close is a no-op")

	_, err := p.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Ping(context.Background()), ErrClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	p := NewPool(KindPostgres, db, "pg", nil)

	mock.ExpectPing()
	mock.ExpectClose()

	require.NoError(t, p.Ping(context.Background()))
	require.NoError(t, p.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}
