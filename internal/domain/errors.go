package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidOrder       = errors.New("invalid order parameters")
	ErrOrderRejected      = errors.New("order rejected")
	ErrNetwork            = errors.New("network failure")
	ErrSigningFailed      = errors.New("signing failed")
	ErrMalformedEvent     = errors.New("malformed event")
	ErrPositionExists     = errors.New("position already open")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrLockHeld           = errors.New("lock already held")
)
