package domain

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrPageOutOfRange    = errors.New("page out of range")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrVersionConflict   = errors.New("session was modified concurrently")
)
