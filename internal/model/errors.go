package model

import "errors"

// Domain error taxonomy. Handlers map these to HTTP statuses; the dispatcher
// uses ErrExternalService to decide whether a job attempt is retryable.
var (
	ErrValidation             = errors.New("validation error")
	ErrNotFound               = errors.New("not found")
	ErrStateConflict          = errors.New("illegal state transition")
	ErrConsentViolation       = errors.New("recipient has not consented")
	ErrOutsideMessagingWindow = errors.New("outside 24-hour messaging window")
	ErrEmptyAudience          = errors.New("no leads match the target audience")
	ErrInvalidSchedule        = errors.New("scheduled time must be in the future")
	ErrExternalService        = errors.New("channel provider error")
	ErrQueueUnavailable       = errors.New("queue unavailable")
)
