package domain

import "errors"

var (
	// ErrNotFound is returned when a record or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConstraint is returned when a write violates a primary key or unique index.
	ErrConstraint = errors.New("constraint violation")

	// ErrUnknownTable is returned for tables that are not part of the schema.
	ErrUnknownTable = errors.New("unknown table")

	// ErrUnknownIndex is returned for indices that are not declared on a table.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrInvalidKey is returned when a key is missing or has an unsupported type.
	ErrInvalidKey = errors.New("invalid key")

	// ErrSchemaDowngrade is returned when the stored schema is newer than the requested one.
	ErrSchemaDowngrade = errors.New("schema downgrade not supported")
)

// IsPermanent reports whether err can never succeed on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConstraint) ||
		errors.Is(err, ErrUnknownTable) ||
		errors.Is(err, ErrUnknownIndex) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrSchemaDowngrade)
}
