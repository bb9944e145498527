package outbox

import (
	"context"
	"errors"
	"testing"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/hub"
	"fitrank/backend/internal/logging"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func mockOutbox(t *testing.T) (*Outbox, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return New(db, hub.New(emptyHydrator(), logging.Discard()), logging.Discard()), mock
}

func TestMarkEventsSeenPostgres(t *testing.T) {
	o, mock := mockOutbox(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "events" SET "seen_at"=\$1 WHERE .*user_id = \$2 AND id <= \$3 AND seen_at IS NULL`).
		WithArgs(sqlmock.AnyArg(), 7, 42).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := o.MarkEventsSeen(context.Background(), 7, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEventsSeenRollsBackOnError(t *testing.T) {
	o, mock := mockOutbox(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "events"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := o.MarkEventsSeen(context.Background(), 7, 42)
	assert.ErrorIs(t, err, apperr.ErrInternal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEventsSeenRequiresUser(t *testing.T) {
	o, mock := mockOutbox(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := o.MarkEventsSeen(context.Background(), 0, 42)
	assert.ErrorIs(t, err, apperr.ErrBadData)
	assert.NoError(t, mock.ExpectationsWereMet())
}
