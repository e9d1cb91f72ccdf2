package helper

import "codeberg.org/mutker/cpupowerctl/internal/errors"

const (
	// Registration and lifecycle errors
	ErrBusUnreachable = errors.ErrorCode("helper_bus_unreachable")
	ErrNameTaken      = errors.ErrorCode("helper_name_taken")
	ErrRegisterFailed = errors.ErrorCode("helper_register_failed")

	// Authorization errors
	ErrAuthorityCall = errors.ErrorCode("helper_authority_call_failed")

	// Mutation errors
	ErrUnitUnavailable = errors.ErrUnitUnavailable
	ErrWriteFailed     = errors.ErrWriteFailed
)

// Return codes of the mutating IPC methods.
const (
	CodeOK          int32 = 0
	CodeUnavailable int32 = -1
	CodeWriteFailed int32 = -13
)

// ReturnCode maps a mutation error to its wire-level return code.
func ReturnCode(err error) int32 {
	if err == nil {
		return CodeOK
	}

	switch errors.CodeOf(err) {
	case ErrWriteFailed:
		return CodeWriteFailed
	default:
		return CodeUnavailable
	}
}
