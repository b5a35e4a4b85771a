package sim

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/simlink/core"
)

// Pending is the result of a sent reset or action. The engine advances on
// its own after the request; Wait blocks until it is ready again.
//
// Under auto-lock the controller waits before handing the Pending out, so
// Status reports a resolved result right away. Without it the caller decides
// when, or whether, to wait.
type Pending struct {
	c  *Controller
	op string

	mu     sync.Mutex
	status *core.Status
}

func newPending(c *Controller, op string) *Pending {
	return &Pending{c: c, op: op}
}

// Op names the request, "reset" or "action".
func (p *Pending) Op() string { return p.op }

// Status returns the resolved status, if a wait has succeeded.
func (p *Pending) Status() (core.Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == nil {
		return core.Status{}, false
	}
	return *p.status, true
}

// Wait locks on the controller's LockDefaults. Once a wait has succeeded
// its status is returned without further polling, as long as it lies in the
// mask being waited for.
func (p *Pending) Wait(ctx context.Context) (core.Status, error) {
	return p.WaitFor(ctx, 0, 0)
}

// WaitFor is Wait with an explicit mask and timeout; zero values use the
// defaults.
func (p *Pending) WaitFor(ctx context.Context, mask core.StateMask, timeout time.Duration) (core.Status, error) {
	want := mask
	if want == 0 {
		want = p.c.opts.LockDefaults.Mask
	}
	if st, ok := p.Status(); ok && st.State.In(want) {
		return st, nil
	}
	st, err := p.c.Lock(ctx, mask, timeout)
	if err != nil {
		return st, err
	}
	p.mu.Lock()
	p.status = &st
	p.mu.Unlock()
	return st, nil
}
