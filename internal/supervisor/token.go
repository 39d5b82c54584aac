package supervisor

import "sync/atomic"

// Token is a per-job cancellation flag. The event side sets it; the
// worker polls it between windows. Setting it never waits for the worker.
type Token struct {
	set atomic.Bool
}

// NewToken returns an unset token.
func NewToken() *Token {
	return &Token{}
}

// Cancel sets the token. It reports whether this call was the one that
// set it.
func (t *Token) Cancel() bool {
	return t.set.CompareAndSwap(false, true)
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.set.Load()
}
