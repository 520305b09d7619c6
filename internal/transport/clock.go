// Package transport advances the play position at the tempo and fires the
// notes of each step.
package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/icco/stepseq/internal/logging"
	"github.com/icco/stepseq/internal/pattern"
	"github.com/icco/stepseq/internal/sched"
)

const (
	MinBPM     = 60
	MaxBPM     = 180
	DefaultBPM = 120

	// StepsPerBeat makes one step a sixteenth note.
	StepsPerBeat = 4

	// Stopped is the step reported while not playing.
	Stopped = -1
)

// Interval returns the duration of one step at bpm: 60000 / bpm / 4 ms.
// The tempo is clamped first, so any int is safe.
func Interval(bpm int) time.Duration {
	return time.Minute / time.Duration(ClampBPM(bpm)*StepsPerBeat)
}

// ClampBPM bounds a tempo to [MinBPM, MaxBPM].
func ClampBPM(bpm int) int {
	switch {
	case bpm < MinBPM:
		return MinBPM
	case bpm > MaxBPM:
		return MaxBPM
	}
	return bpm
}

// State is a snapshot of the transport.
type State struct {
	Playing bool
	BPM     int
	Step    int // Stopped, or 0..pattern.Resolution-1
}

func (s State) String() string {
	if !s.Playing {
		return fmt.Sprintf("stopped @ %d bpm", s.BPM)
	}
	return fmt.Sprintf("step %d @ %d bpm", s.Step+1, s.BPM)
}

// Source returns the pattern to read at a tick.
type Source func() *pattern.Pattern

// Player plays one note of a track.
type Player interface {
	PlayNote(name string, channel int) error
}

// Clock is the transport state machine. In the Stopped state no timer is
// armed; in the Running state exactly one repeating timer is. All methods
// are safe for concurrent use.
type Clock struct {
	sched  sched.Scheduler
	source Source
	player Player
	log    *log.Logger
	onStep func(State)

	mu      sync.Mutex
	playing bool
	bpm     int
	step    int
	timer   sched.Handle

	// gen identifies the armed timer. A tick that raced with a Stop or a
	// tempo change sees a different gen and does nothing.
	gen uint64
}

// Option configures a Clock.
type Option func(*Clock)

func WithLogger(l *log.Logger) Option {
	return func(c *Clock) { c.log = l }
}

// WithOnStep registers a callback run after each dispatched step and after
// each state change, with the lock held. It must not call the Clock.
func WithOnStep(fn func(State)) Option {
	return func(c *Clock) { c.onStep = fn }
}

// WithBPM sets the initial tempo, clamped to the valid range.
func WithBPM(bpm int) Option {
	return func(c *Clock) { c.bpm = ClampBPM(bpm) }
}

// New returns a stopped clock.
func New(s sched.Scheduler, source Source, player Player, opts ...Option) *Clock {
	c := &Clock{
		sched:  s,
		source: source,
		player: player,
		log:    logging.Discard(),
		onStep: func(State) {},
		bpm:    DefaultBPM,
		step:   Stopped,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current transport state.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Play starts playback at step 0. Step 0 is dispatched before Play returns;
// the timer then advances from there. Play while running does nothing.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.playing = true
	c.step = 0
	c.log.Debug("transport start", "bpm", c.bpm, "interval", Interval(c.bpm))
	c.dispatchLocked()
	c.armLocked()
}

// Stop cancels the timer and rewinds to Stopped. Stop while stopped does
// nothing.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.disarmLocked()
	c.playing = false
	c.step = Stopped
	c.log.Debug("transport stop")
	c.onStep(c.stateLocked())
}

// SetTempo changes the tempo, clamped to [MinBPM, MaxBPM], and returns the
// tempo applied. While running, the timer is replaced and playback carries
// on from the current step.
func (c *Clock) SetTempo(bpm int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	bpm = ClampBPM(bpm)
	if bpm == c.bpm {
		return bpm
	}
	c.bpm = bpm
	if c.playing {
		c.disarmLocked()
		c.armLocked()
		c.log.Debug("transport tempo", "bpm", bpm, "step", c.step)
	}
	c.onStep(c.stateLocked())
	return bpm
}

// armLocked starts the repeating timer. The previous one must already be
// cancelled.
func (c *Clock) armLocked() {
	c.gen++
	gen := c.gen
	c.timer = c.sched.Repeat(Interval(c.bpm), func() { c.tick(gen) })
}

func (c *Clock) disarmLocked() {
	if c.timer != nil {
		c.timer.Cancel()
		c.timer = nil
	}
	c.gen++
}

func (c *Clock) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing || gen != c.gen {
		return
	}
	c.step = (c.step + 1) % pattern.Resolution
	c.dispatchLocked()
}

// dispatchLocked plays the active tracks at the current step. Failures are
// logged and never escape, so one bad track cannot stop the timer.
func (c *Clock) dispatchLocked() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("step dispatch panicked", "step", c.step, "panic", r)
		}
	}()

	p := c.source()
	if p != nil {
		for _, t := range p.ActiveAt(c.step) {
			if err := c.player.PlayNote(t.Note(), t.Channel()); err != nil {
				c.log.Debug("step not played", "step", c.step, "track", t.ID(), "err", err)
			}
		}
	}
	c.onStep(c.stateLocked())
}

func (c *Clock) stateLocked() State {
	return State{Playing: c.playing, BPM: c.bpm, Step: c.step}
}
