package domain

import "errors"

// Sentinel errors shared across usecases and adapters. Callers branch with
// errors.Is; adapters wrap these with context via fmt.Errorf and %w.
var (
	ErrNotFound            = errors.New("record not found")
	ErrAlreadyRunning      = errors.New("sync already running")
	ErrNoCredentials       = errors.New("share class has no API credentials")
	ErrMalformedAccount    = errors.New("malformed account string")
	ErrUnknownCounterparty = errors.New("unknown counterparty")
	ErrNoBasicAccount      = errors.New("share class has no basic account")
)
