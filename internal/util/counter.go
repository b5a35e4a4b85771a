package util

import (
	"errors"
	"sync"
)

// Counter hands out an arithmetic sequence of integers. It is safe for
// concurrent use and is typically wrapped in a generator to give every reset
// a distinct engine seed.
type Counter struct {
	mu   sync.Mutex
	next int64
	step int64
}

// NewCounter returns a counter whose first value is start.
func NewCounter(start, step int64) (*Counter, error) {
	if step == 0 {
		return nil, errors.New("counter step cannot be 0")
	}
	return &Counter{next: start, step: step}, nil
}

// Next returns the current value and advances the sequence.
func (c *Counter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.next
	c.next += c.step
	return v
}
