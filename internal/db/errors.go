package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when attempting to insert a duplicate record.
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated.
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrImmutableRecord is returned when an append-only row is updated.
	ErrImmutableRecord = errors.New("record is immutable and cannot be modified")

	// ErrSerializationFailure is returned when a serializable transaction
	// lost a conflict or a deadlock was broken. The transaction may be rerun.
	ErrSerializationFailure = errors.New("serialization failure")

	// ErrStorageFailure marks a storage or transaction failure that left the
	// cache in its previous state. The whole operation may be retried.
	ErrStorageFailure = errors.New("storage failure")
)

// WrapError adds the operation to err and maps driver errors to the
// sentinels above.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", operation, ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w (constraint: %s)", operation, ErrDuplicateKey, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w (constraint: %s)", operation, ErrForeignKeyViolation, pgErr.ConstraintName)
		case "P0001": // raise_exception from the append-only trigger
			return fmt.Errorf("%s: %w: %s", operation, ErrImmutableRecord, pgErr.Message)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%s: %w: %w", operation, ErrSerializationFailure, err)
		default:
			return fmt.Errorf("%s: database error [%s]: %w", operation, pgErr.Code, err)
		}
	}

	return fmt.Errorf("%s: %w", operation, err)
}

// StorageFailure wraps err as ErrStorageFailure, keeping the cause.
func StorageFailure(err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageFailure) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", operation, ErrStorageFailure, err)
}

// IsNotFound returns true if the error is an ErrNotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateKey returns true if the error is an ErrDuplicateKey error.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsForeignKeyViolation returns true if the error is an ErrForeignKeyViolation error.
func IsForeignKeyViolation(err error) bool {
	return errors.Is(err, ErrForeignKeyViolation)
}

// IsImmutableRecord returns true if the error is an ErrImmutableRecord error.
func IsImmutableRecord(err error) bool {
	return errors.Is(err, ErrImmutableRecord)
}

// IsSerializationFailure returns true if the transaction may be rerun.
func IsSerializationFailure(err error) bool {
	return errors.Is(err, ErrSerializationFailure)
}

// IsStorageFailure returns true if the error is an ErrStorageFailure error.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}
