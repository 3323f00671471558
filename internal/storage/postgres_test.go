package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/aiworkforme/outreach-engine/internal/apperrors"
	"github.com/aiworkforme/outreach-engine/internal/tenant"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
)

// Note on SQL Query Matching in Tests:
// ----------------------------------
// GORM generates SQL with clause ordering that can make exact string matching
// brittle. These tests use sqlmock.QueryMatcherRegexp with partial patterns
// (table name plus the load-bearing clause) and sqlmock.AnyArg() for values
// whose exact encoding does not matter. What the tests pin down is the shape
// of the statement and, above all, how rows-affected outcomes are translated.

const storageTestTenantID = "tenant-storage-test"

// AnyTime matches any time.Time argument.
type AnyTime struct{}

// Match satisfies sqlmock.Argument interface
func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

// newTestRepo creates a PostgresRepo on a sqlmock connection with regex query
// matching.
func newTestRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock, func()) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	repo := &PostgresRepo{db: gormDB}
	teardown := func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	}
	return repo, mock, teardown
}

func contextWithTestTenant() context.Context {
	return tenant.WithTenantID(context.Background(), storageTestTenantID)
}

func TestIsTransientError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "Nil error", err: nil, expected: false},
		{name: "Context deadline exceeded", err: context.DeadlineExceeded, expected: true},
		{name: "Wrapped context deadline exceeded", err: fmt.Errorf("operation failed: %w", context.DeadlineExceeded), expected: true},
		{name: "GORM record not found", err: gorm.ErrRecordNotFound, expected: false},
		{name: "PG connection exception (08000)", err: &pgconn.PgError{Code: "08000"}, expected: true},
		{name: "PG insufficient resources (53100)", err: &pgconn.PgError{Code: "53100"}, expected: true},
		{name: "PG deadlock detected (40P01)", err: &pgconn.PgError{Code: "40P01"}, expected: true},
		{name: "PG serialization failure (40001)", err: &pgconn.PgError{Code: "40001"}, expected: true},
		{name: "PG syntax error (42601)", err: &pgconn.PgError{Code: "42601"}, expected: false},
		{name: "Network connection refused", err: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), expected: true},
		{name: "Network i/o timeout", err: errors.New("read tcp: i/o timeout"), expected: true},
		{name: "Network broken pipe", err: errors.New("write: broken pipe"), expected: true},
		{name: "DB starting up", err: errors.New("pq: the database system is starting up"), expected: true},
		{name: "Generic error", err: errors.New("some other database error"), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, isTransientError(tc.err))
		})
	}
}

func TestCheckConstraintViolation(t *testing.T) {
	testCases := []struct {
		name           string
		inErr          error
		expectedStdErr error
		msgFrag        string
	}{
		{name: "Nil error", inErr: nil, expectedStdErr: nil},
		{name: "Record not found", inErr: gorm.ErrRecordNotFound, expectedStdErr: apperrors.ErrNotFound, msgFrag: "record not found"},
		{name: "Wrapped record not found", inErr: fmt.Errorf("wrapper: %w", gorm.ErrRecordNotFound), expectedStdErr: apperrors.ErrNotFound, msgFrag: "record not found"},
		{name: "Unique violation (23505)", inErr: &pgconn.PgError{Code: "23505", ConstraintName: "leads_pkey"}, expectedStdErr: apperrors.ErrDuplicate, msgFrag: "leads_pkey"},
		{name: "Foreign key violation (23503)", inErr: &pgconn.PgError{Code: "23503", ConstraintName: "fk_messages_leads"}, expectedStdErr: apperrors.ErrBadRequest, msgFrag: "fk_messages_leads"},
		{name: "Not null violation (23502)", inErr: &pgconn.PgError{Code: "23502", ColumnName: "external_id"}, expectedStdErr: apperrors.ErrBadRequest, msgFrag: "external_id"},
		{name: "Check violation (23514)", inErr: &pgconn.PgError{Code: "23514", ConstraintName: "retry_count_check"}, expectedStdErr: apperrors.ErrBadRequest, msgFrag: "retry_count_check"},
		{name: "String truncation (22001)", inErr: &pgconn.PgError{Code: "22001", ColumnName: "text_content"}, expectedStdErr: apperrors.ErrBadRequest, msgFrag: "text_content"},
		{name: "Invalid text representation (22P02)", inErr: &pgconn.PgError{Code: "22P02", DataTypeName: "timestamp"}, expectedStdErr: apperrors.ErrBadRequest, msgFrag: "timestamp"},
		{name: "Deadlock (40P01)", inErr: &pgconn.PgError{Code: "40P01"}, expectedStdErr: apperrors.ErrDatabase, msgFrag: "40P01"},
		{name: "Serialization failure (40001)", inErr: &pgconn.PgError{Code: "40001"}, expectedStdErr: apperrors.ErrDatabase, msgFrag: "40001"},
		{name: "Insufficient resources (53200)", inErr: &pgconn.PgError{Code: "53200"}, expectedStdErr: apperrors.ErrDatabase, msgFrag: "53200"},
		{name: "Connection exception (08003)", inErr: &pgconn.PgError{Code: "08003"}, expectedStdErr: apperrors.ErrDatabase, msgFrag: "08003"},
		{name: "Unhandled pg code (XX000)", inErr: &pgconn.PgError{Code: "XX000"}, expectedStdErr: apperrors.ErrDatabase, msgFrag: "XX000"},
		{name: "Generic error", inErr: errors.New("some generic DB error"), expectedStdErr: apperrors.ErrDatabase, msgFrag: "some generic DB error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			outErr := checkConstraintViolation(tc.inErr)

			if tc.expectedStdErr == nil {
				assert.NoError(t, outErr)
				return
			}
			assert.Error(t, outErr)
			assert.Truef(t, errors.Is(outErr, tc.expectedStdErr), "expected %v to wrap %v", outErr, tc.expectedStdErr)
			assert.Truef(t, errors.Is(outErr, tc.inErr), "expected %v to preserve %v", outErr, tc.inErr)
			assert.ErrorContains(t, outErr, tc.msgFrag)
		})
	}
}

func TestPostgresRepo_Ping(t *testing.T) {
	// Ping monitoring needs its own sqlmock option.
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)
	repo := &PostgresRepo{db: gormDB}

	mock.ExpectPing()

	assert.NoError(t, repo.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Close(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		mock.ExpectClose()

		err := repo.Close(context.Background())
		assert.NoError(t, err)
	})

	t.Run("Close fails", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		mock.ExpectClose().WillReturnError(errors.New("db close error"))

		err := repo.Close(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to close SQL DB")
	})
}
