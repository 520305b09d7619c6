package sched

import (
	"sync"
	"time"
)

// Sim is a Scheduler driven by Advance instead of the system clock.
// Callbacks run on the goroutine calling Advance, in chronological order;
// callbacks due at the same instant run in the order they were armed.
type Sim struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	timers map[uint64]*simTimer
}

type simTimer struct {
	sim   *Sim
	id    uint64
	at    time.Duration
	every time.Duration // zero for one-shot timers
	fn    func()
}

// NewSim returns a simulated scheduler at time zero.
func NewSim() *Sim {
	return &Sim{timers: make(map[uint64]*simTimer)}
}

func (s *Sim) Repeat(interval time.Duration, fn func()) Handle {
	if interval <= 0 {
		panic("sched: non-positive repeat interval")
	}
	return s.arm(interval, interval, fn)
}

func (s *Sim) Once(delay time.Duration, fn func()) Handle {
	if delay < 0 {
		delay = 0
	}
	return s.arm(delay, 0, fn)
}

func (s *Sim) arm(delay, every time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &simTimer{sim: s, id: s.seq, at: s.now + delay, every: every, fn: fn}
	s.timers[t.id] = t
	return t
}

func (t *simTimer) Cancel() {
	t.sim.mu.Lock()
	defer t.sim.mu.Unlock()
	delete(t.sim.timers, t.id)
}

// Advance moves simulated time forward by d, firing every callback that
// falls due on the way.
func (s *Sim) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	for {
		next := s.nextDue(target)
		if next == nil {
			break
		}
		s.now = next.at
		if next.every > 0 {
			next.at += next.every
		} else {
			delete(s.timers, next.id)
		}
		s.mu.Unlock()
		next.fn()
		s.mu.Lock()
	}
	s.now = target
	s.mu.Unlock()
}

func (s *Sim) nextDue(target time.Duration) *simTimer {
	var next *simTimer
	for _, t := range s.timers {
		if t.at > target {
			continue
		}
		if next == nil || t.at < next.at || (t.at == next.at && t.id < next.id) {
			next = t
		}
	}
	return next
}

// Now returns the simulated time elapsed since NewSim.
func (s *Sim) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Repeating returns the number of armed repeating timers.
func (s *Sim) Repeating() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if t.every > 0 {
			n++
		}
	}
	return n
}

// Intervals returns the periods of the armed repeating timers.
func (s *Sim) Intervals() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, t := range s.timers {
		if t.every > 0 {
			out = append(out, t.every)
		}
	}
	return out
}

// Pending returns the number of armed one-shot timers.
func (s *Sim) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if t.every == 0 {
			n++
		}
	}
	return n
}
