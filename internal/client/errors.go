package client

import "codeberg.org/mutker/cpupowerctl/internal/errors"

const (
	ErrNotConnected = errors.ErrNotConnected
	ErrBusCall      = errors.ErrBusCall

	ErrUnitUnavailable = errors.ErrUnitUnavailable
	ErrWriteFailed     = errors.ErrWriteFailed
)
