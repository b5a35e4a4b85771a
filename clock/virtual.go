package clock

import (
	"sort"
	"sync"
	"time"
)

// Virtual is a Clock whose time only advances through Advance or AdvanceTo.
// Timers fire, in deadline order, once time reaches their deadline.
type Virtual struct {
	mu      sync.Mutex
	current time.Time
	timers  []*virtualTimer
}

type virtualTimer struct {
	deadline time.Time
	ch       chan time.Time
}

// NewVirtual returns a virtual clock set to start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{current: start}
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// After returns a channel that fires when virtual time reaches now+d. A
// non-positive d fires immediately.
func (v *Virtual) After(d time.Duration) <-chan time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()

	t := &virtualTimer{deadline: v.current.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.ch <- v.current
		return t.ch
	}
	v.timers = append(v.timers, t)
	return t.ch
}

// Advance moves time forward by d.
func (v *Virtual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = v.current.Add(d)
	v.fire()
}

// AdvanceTo moves time forward to t. Time never moves backward.
func (v *Virtual) AdvanceTo(t time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !t.After(v.current) {
		return
	}
	v.current = t
	v.fire()
}

// Pending returns the number of timers that have not fired.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}

// NextDeadline returns the earliest pending deadline.
func (v *Virtual) NextDeadline() (time.Time, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.timers) == 0 {
		return time.Time{}, false
	}
	next := v.timers[0].deadline
	for _, t := range v.timers[1:] {
		if t.deadline.Before(next) {
			next = t.deadline
		}
	}
	return next, true
}

// must hold mu
func (v *Virtual) fire() {
	sort.SliceStable(v.timers, func(i, j int) bool { return v.timers[i].deadline.Before(v.timers[j].deadline) })
	remaining := v.timers[:0]
	for _, t := range v.timers {
		if t.deadline.After(v.current) {
			remaining = append(remaining, t)
			continue
		}
		t.ch <- v.current
	}
	v.timers = remaining
}
