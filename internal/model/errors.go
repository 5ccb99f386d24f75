package model

import "errors"

var (
	// ErrDataUnavailable marks a failed or malformed market data read.
	// The instrument skips its cycle.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrPersistence marks a history or journal write failure.
	// In-memory state stays authoritative.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotification marks a delivery failure on an event sink.
	ErrNotification = errors.New("notification failure")
)
