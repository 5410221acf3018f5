package bridge

import "sync"

// Continuation owns a result callback until it is invoked once.
// Later invocations and invocations after Release do nothing.
type Continuation struct {
	mu sync.Mutex
	fn func(Result)
}

// NewContinuation wraps fn. A nil fn yields a continuation that is already
// spent.
func NewContinuation(fn func(Result)) *Continuation {
	return &Continuation{fn: fn}
}

// Invoke runs the callback with r and releases it. It reports whether the
// callback ran.
func (c *Continuation) Invoke(r Result) bool {
	fn := c.take()
	if fn == nil {
		return false
	}
	fn(r)
	return true
}

// Release drops the callback without running it.
func (c *Continuation) Release() bool {
	return c.take() != nil
}

// Pending reports whether the callback is still owned.
func (c *Continuation) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fn != nil
}

func (c *Continuation) take() func(Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn := c.fn
	c.fn = nil
	return fn
}
