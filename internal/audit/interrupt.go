package audit

import "sync/atomic"

// Interrupt is a cooperative cancellation token shared by the signal
// handler, the orchestrator and every dispatch worker. Observers may see a
// Raise one checkpoint late.
type Interrupt struct {
	raised atomic.Bool
}

// NewInterrupt returns a cleared token.
func NewInterrupt() *Interrupt {
	return &Interrupt{}
}

// Raise sets the token. It is safe to call from a signal handler goroutine.
func (i *Interrupt) Raise() {
	i.raised.Store(true)
}

// Raised reports whether the token is set. A nil token is never raised.
func (i *Interrupt) Raised() bool {
	return i != nil && i.raised.Load()
}

// Clear resets the token once the interrupt has been handled.
func (i *Interrupt) Clear() {
	i.raised.Store(false)
}
