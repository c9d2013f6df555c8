package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes
const (
	// ErrCodeQueryCanceled is raised when statement_timeout fires or the client cancels
	ErrCodeQueryCanceled = "57014"
	// ErrCodeUndefinedTable is raised when the schema has not been migrated
	ErrCodeUndefinedTable = "42P01"
	// ErrCodeInvalidRegex is raised by ~ when a pattern is rejected by PostgreSQL
	ErrCodeInvalidRegex = "2201B"
	// ErrCodeInvalidText is raised by failed casts such as '1e999'::numeric
	ErrCodeInvalidText = "22P02"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsQueryCanceled checks if an error is a canceled statement
func IsQueryCanceled(err error) bool {
	return pgCode(err) == ErrCodeQueryCanceled
}

// IsUndefinedTable checks if an error references a missing table
func IsUndefinedTable(err error) bool {
	return pgCode(err) == ErrCodeUndefinedTable
}

// IsInvalidInput checks if the database rejected a user-supplied value,
// for example a regular expression Go accepted but PostgreSQL did not.
func IsInvalidInput(err error) bool {
	switch pgCode(err) {
	case ErrCodeInvalidRegex, ErrCodeInvalidText:
		return true
	}
	return false
}
