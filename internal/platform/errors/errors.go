package apperrors

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrNoSnapshot         = errors.New("no persisted session")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrNothingToStop      = errors.New("nothing to stop")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrStartCancelled     = errors.New("start cancelled")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrSensorUnavailable  = errors.New("sensor unavailable")
)
