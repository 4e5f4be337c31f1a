package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateRunsSchema(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := &DB{Client: sqlx.NewDb(raw, "sqlmock")}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS class_groups").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateWrapsFailure(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := &DB{Client: sqlx.NewDb(raw, "sqlmock")}

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	err = db.Migrate(context.Background())
	assert.ErrorContains(t, err, "migrate schema")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}

func TestNilHandlesAreSafe(t *testing.T) {
	var db *DB
	assert.NoError(t, db.Close())
	assert.False(t, db.Healthy(context.Background()))

	var r *Redis
	assert.NoError(t, r.Close())
	assert.False(t, r.Healthy(context.Background()))
}
