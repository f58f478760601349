package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrAlreadyDecided    = errors.New("decision already recorded")
	ErrLockHeld          = errors.New("lock already held")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limited")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDeployFailed      = errors.New("deployment failed")
)
