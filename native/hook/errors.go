package hook

import "errors"

var (
	// ErrContextConsumed indicates a post-trade call with a context that was
	// already finalised, or never produced by a pre-trade call.
	ErrContextConsumed = errors.New("hook: swap context already consumed")
	// ErrContextMismatch indicates a context presented for a different trader
	// than the one it was created for.
	ErrContextMismatch = errors.New("hook: swap context trader mismatch")
	// ErrInvalidTrade indicates trade parameters the interceptor cannot act on.
	ErrInvalidTrade = errors.New("hook: invalid trade parameters")

	errNotConfigured = errors.New("hook: interceptor not configured")
)
