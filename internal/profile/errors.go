package profile

import "codeberg.org/mutker/cpupowerctl/internal/errors"

const (
	ErrProfileInvalid  = errors.ErrProfileInvalid
	ErrProfileNotFound = errors.ErrProfileNotFound

	ErrEmptyName     = errors.ErrorCode("profile_empty_name")
	ErrProtected     = errors.ErrorCode("profile_protected")
	ErrWriteProfile  = errors.ErrorCode("profile_write_failed")
	ErrDeleteProfile = errors.ErrorCode("profile_delete_failed")
)
