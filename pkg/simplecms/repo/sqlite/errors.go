package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// handleSQLiteError maps driver errors to simplecms error kinds.
func handleSQLiteError(operation string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		msg := sqliteErr.Error()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			strings.Contains(msg, "UNIQUE constraint failed"):
			if strings.Contains(msg, "page_contents") {
				return fmt.Errorf("%w: %s: %s", simplecms.ErrConcurrencyConflict, operation, msg)
			}
			return fmt.Errorf("duplicate entry in %s: %s", operation, msg)
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY || strings.Contains(msg, "FOREIGN KEY constraint failed"):
			return fmt.Errorf("%w: %s references a missing record", simplecms.ErrNotFound, operation)
		case code == sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("required field is missing in %s: %s", operation, msg)
		case code&0xff == sqlite3.SQLITE_BUSY || code&0xff == sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %s: database is busy", simplecms.ErrConcurrencyConflict, operation)
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("record not found in %s", operation)
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}
