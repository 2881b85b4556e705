package models

import "errors"

// Sentinel errors shared by the coordinator and its surfaces.
var (
	ErrResourceUnavailable = errors.New("resource sample unavailable")
	ErrTaskNotFound        = errors.New("task not found")
	ErrInvalidPriority     = errors.New("invalid priority")
	ErrInvalidMode         = errors.New("invalid mode")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidTask         = errors.New("invalid task")
)
