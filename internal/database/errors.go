package database

import "errors"

var (
	ErrNotFound               = errors.New("record not found")
	ErrSlotConflict           = errors.New("requested interval conflicts with an existing booking")
	ErrPastDate               = errors.New("booking date is in the past")
	ErrDateTooFar             = errors.New("booking date is too far in the future")
	ErrTooSoon                = errors.New("booking does not meet the minimum advance time")
	ErrConcurrentModification = errors.New("booking was modified concurrently")
)
