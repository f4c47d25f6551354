package common

import (
	"errors"
	"sync/atomic"
)

var ErrReentrancy = errors.New("reentrant call rejected")

// ReentrancyGuard protects the trade callback phases and the externally
// callable savings entry points. Trades are serialised by the enclosing
// execution environment, so a second Enter while a guarded operation is
// active can only mean a nested call on the same chain; it must fail
// immediately rather than queue or block.
type ReentrancyGuard struct {
	active atomic.Bool
}

// Enter marks the guard as active. It returns ErrReentrancy when a guarded
// operation is already in flight.
func (g *ReentrancyGuard) Enter() error {
	if g == nil {
		return nil
	}
	if !g.active.CompareAndSwap(false, true) {
		return ErrReentrancy
	}
	return nil
}

// Exit releases the guard. Calling Exit without a matching Enter is a no-op.
func (g *ReentrancyGuard) Exit() {
	if g == nil {
		return
	}
	g.active.Store(false)
}
