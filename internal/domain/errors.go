package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidChain     = errors.New("invalid chain")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrStaleOpportunity = errors.New("stale opportunity")
	ErrWeightExhausted  = errors.New("request weight exhausted")
	ErrLegFailed        = errors.New("leg execution failed")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrRateLimited      = errors.New("rate limited")
)
