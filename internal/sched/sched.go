// Package sched abstracts timers so that playback can run against the wall
// clock or against simulated time in tests.
package sched

import (
	"sync"
	"time"
)

// Handle cancels a scheduled callback. Cancel is idempotent.
type Handle interface {
	Cancel()
}

// Scheduler arms repeating and one-shot callbacks.
type Scheduler interface {
	// Repeat calls fn every interval until the handle is cancelled.
	Repeat(interval time.Duration, fn func()) Handle
	// Once calls fn after delay unless the handle is cancelled first.
	Once(delay time.Duration, fn func()) Handle
}

// Wall schedules callbacks on the system clock. Repeating callbacks run on
// their own goroutine, driven by a time.Ticker so that the period does not
// drift with callback duration.
type Wall struct{}

// NewWall returns a wall clock scheduler.
func NewWall() Wall { return Wall{} }

func (Wall) Repeat(interval time.Duration, fn func()) Handle {
	h := &tickerHandle{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-h.done:
				return
			case <-h.ticker.C:
				// A tick may race with Cancel; prefer the cancellation.
				select {
				case <-h.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return h
}

func (Wall) Once(delay time.Duration, fn func()) Handle {
	return timerHandle{time.AfterFunc(delay, fn)}
}

type tickerHandle struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (h *tickerHandle) Cancel() {
	h.once.Do(func() {
		h.ticker.Stop()
		close(h.done)
	})
}

type timerHandle struct {
	timer *time.Timer
}

func (h timerHandle) Cancel() { h.timer.Stop() }
