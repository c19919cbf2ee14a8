package docstore

import (
	"errors"

	"cyberbook/internal/domain"
)

// Tables of the reading portal.
const (
	TableNotes     = "notes"
	TableProgress  = "progress"
	TableBookmarks = "bookmarks"
	TableSettings  = "settings"
	TableSession   = "session"
	TableStats     = "stats"
)

// PortalSchemaVersion is the current version of PortalSchema.
const PortalSchemaVersion = 2

// PortalSchema is the schema of the reading portal's local data.
func PortalSchema() domain.Schema {
	return domain.Schema{
		Version: PortalSchemaVersion,
		Tables: []domain.TableSchema{
			{Name: TableNotes, KeyPath: "id", Indexes: []domain.IndexSchema{{Field: "chapter"}}},
			{Name: TableProgress, KeyPath: "chapter"},
			{Name: TableBookmarks, KeyPath: "id", AutoIncrement: true, Indexes: []domain.IndexSchema{
				{Field: "chapter"},
				{Field: "anchor", Unique: true},
			}},
			{Name: TableSettings, KeyPath: "key"},
			{Name: TableSession, KeyPath: "key"},
			{Name: TableStats, KeyPath: "name"},
		},
	}
}

// PortalSchemaV1 is the first released schema: no bookmarks and no index
// on notes.chapter. Kept so upgrades can be exercised.
func PortalSchemaV1() domain.Schema {
	return domain.Schema{
		Version: 1,
		Tables: []domain.TableSchema{
			{Name: TableNotes, KeyPath: "id"},
			{Name: TableProgress, KeyPath: "chapter"},
			{Name: TableSettings, KeyPath: "key"},
			{Name: TableSession, KeyPath: "key"},
			{Name: TableStats, KeyPath: "name"},
		},
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
