package history

import "codeberg.org/mutker/cpupowerctl/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("history_invalid_db_path")

	// Schema errors
	ErrSchemaInitFailed      = errors.ErrorCode("history_schema_init_failed")
	ErrSchemaVersionMismatch = errors.ErrorCode("history_schema_version_mismatch")
	ErrTransactionFailed     = errors.ErrorCode("history_transaction_failed")

	// Storage errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed

	// Recording errors
	ErrInvalidEntry  = errors.ErrorCode("history_invalid_entry")
	ErrRecordFailed  = errors.ErrorCode("history_record_failed")
	ErrRecordTimeout = errors.ErrTimeout
)
