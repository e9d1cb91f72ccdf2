package history

import (
	"database/sql"
	"time"

	"codeberg.org/mutker/cpupowerctl/internal/errors"
	"codeberg.org/mutker/cpupowerctl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS settings_log (
	       id        INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp INTEGER NOT NULL,
	       cpu       INTEGER NOT NULL,
	       action    TEXT NOT NULL,
	       value     TEXT NOT NULL,
	       caller    TEXT NOT NULL,
	       result    INTEGER NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS settings_log_timestamp ON settings_log (timestamp);`

	insertEntrySQL = `
    INSERT INTO settings_log (timestamp, cpu, action, value, caller, result)
    VALUES (?, ?, ?, ?, ?, ?)`
)

// InitSchema creates the tables and stamps the current schema version.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO schema_versions (version, applied_at) VALUES (?, ?)",
		SchemaVersion, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	return nil
}

// ValidateSchema initializes an empty database and rejects one written by a
// newer version.
func ValidateSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	if err != nil {
		// Fresh database without the versions table
		return InitSchema(db, log)
	}

	switch {
	case version == 0:
		return InitSchema(db, log)
	case version > SchemaVersion:
		return errFactory.WithData(ErrSchemaVersionMismatch, version)
	default:
		return nil
	}
}
