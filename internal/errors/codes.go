package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidTimeout  ErrorCode = "invalid_timeout"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Transport errors
	ErrNotConnected ErrorCode = "not_connected"
	ErrBusCall      ErrorCode = "bus_call_failed"

	// Authorization errors
	ErrNotAuthorized ErrorCode = "not_authorized"

	// CPU unit errors
	ErrUnitUnavailable ErrorCode = "unit_unavailable"
	ErrWriteFailed     ErrorCode = "write_failed"
	ErrReadFailed      ErrorCode = "read_failed"

	// Profile errors
	ErrProfileInvalid  ErrorCode = "profile_invalid"
	ErrProfileNotFound ErrorCode = "profile_not_found"

	// Operation errors
	ErrOperationFailed  ErrorCode = "operation_failed"
	ErrTimeout          ErrorCode = "operation_timeout"
	ErrInvalidOperation ErrorCode = "invalid_operation"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrNotImplemented:   "Operation not implemented",
	ErrUnavailable:      "Service unavailable",
	ErrInvalidConfig:    "Invalid configuration",
	ErrMissingConfig:    "Missing configuration",
	ErrReadConfig:       "Failed to read configuration",
	ErrInvalidTimeout:   "Invalid timeout value",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrAlreadyRunning:   "Service already running",
	ErrNotConnected:     "Helper service not reachable",
	ErrBusCall:          "D-Bus call failed",
	ErrNotAuthorized:    "Not authorized",
	ErrUnitUnavailable:  "CPU not present or not online",
	ErrWriteFailed:      "Failed to write control file",
	ErrReadFailed:       "Failed to read control file",
	ErrProfileInvalid:   "Malformed profile entry",
	ErrProfileNotFound:  "Profile not found",
	ErrOperationFailed:  "Operation failed",
	ErrTimeout:          "Operation timed out",
	ErrInvalidOperation: "Invalid operation",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
