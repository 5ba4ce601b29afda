package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("invalid input")
	ErrQuestionNotOpen = errors.New("question is not open for forecasts")
	ErrDeadlinePassed  = errors.New("question has closed")
	ErrAlreadyResolved = errors.New("question already resolved")
	ErrNotResolved     = errors.New("question must be resolved to score forecasts")
	ErrRateLimited     = errors.New("rate limited")
	ErrLockHeld        = errors.New("lock already held")
)
