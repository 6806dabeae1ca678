package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidWallet      = errors.New("invalid wallet address")
	ErrAmbiguousOwnership = errors.New("transaction claimed by more than one position")
	ErrUpstream           = errors.New("upstream service unavailable")
	ErrLockHeld           = errors.New("lock already held")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotConfigured      = errors.New("feature not configured")
)
