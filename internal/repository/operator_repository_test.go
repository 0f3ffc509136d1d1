package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var operatorRowColumns = []string{"id", "email", "password_hash", "display_name", "role", "active", "last_login_at", "created_at", "updated_at"}

func TestOperatorFindByEmailIsCaseInsensitive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM operators WHERE lower(email) = $1 LIMIT 1")).
		WithArgs("planner@example.edu").
		WillReturnRows(sqlmock.NewRows(operatorRowColumns).
			AddRow("op-1", "Planner@example.edu", "hash", "Exam Office", string(models.RolePlanner), true, nil, now, now))

	op, err := NewOperatorRepository(db).FindByEmail(context.Background(), "  PLANNER@example.edu ")
	require.NoError(t, err)
	assert.Equal(t, "op-1", op.ID)
	assert.Equal(t, models.RolePlanner, op.Role)
	assert.Nil(t, op.LastLoginAt)
	assert.Equal(t, "Exam Office", op.Info().DisplayName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOperatorFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM operators WHERE id = $1 LIMIT 1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := NewOperatorRepository(db).FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOperatorTouchLastLogin(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	at := time.Date(2025, 1, 6, 7, 45, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE operators SET last_login_at = $2, updated_at = $2 WHERE id = $1")).
		WithArgs("op-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewOperatorRepository(db).TouchLastLogin(context.Background(), "op-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}
