package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{name: "no rows", err: pgx.ErrNoRows, check: IsNotFound},
		{name: "unique", err: &pgconn.PgError{Code: "23505", ConstraintName: "videos_pkey"}, check: IsDuplicateKey},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, check: IsForeignKeyViolation},
		{name: "append-only trigger", err: &pgconn.PgError{Code: "P0001", Message: "append-only"}, check: IsImmutableRecord},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, check: IsSerializationFailure},
		{name: "deadlock", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), check: IsSerializationFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapError(tt.err, "op")
			assert.True(t, tt.check(err))
			assert.Contains(t, err.Error(), "op: ")
		})
	}

	assert.NoError(t, WrapError(nil, "op"))

	plain := errors.New("connection reset")
	wrapped := WrapError(plain, "op")
	assert.ErrorIs(t, wrapped, plain)
	assert.False(t, IsNotFound(wrapped))
}

func TestStorageFailure(t *testing.T) {
	assert.NoError(t, StorageFailure(nil, "op"))

	cause := WrapError(&pgconn.PgError{Code: "40001"}, "commit")
	err := StorageFailure(cause, "gc pass")
	assert.True(t, IsStorageFailure(err))
	assert.True(t, IsSerializationFailure(err))

	assert.Same(t, err, StorageFailure(err, "outer"))
}
