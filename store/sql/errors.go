package sqlstore

import (
	"database/sql"
	"errors"
	"strings"
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint") ||
		strings.Contains(message, "constraint failed: unique")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
