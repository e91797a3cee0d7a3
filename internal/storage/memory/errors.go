package memory

import (
	"fmt"

	"github.com/timetable/timetable-sync/internal/db"
	"github.com/timetable/timetable-sync/internal/model"
)

// fkViolation mirrors the foreign keys of the Postgres schema so that a
// wrong deletion order fails the same way in both stores.
func fkViolation(table string, id model.Identifier) error {
	return fmt.Errorf("row %s still referenced from %s: %w", id, table, db.ErrForeignKeyViolation)
}
