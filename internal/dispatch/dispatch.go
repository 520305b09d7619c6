// Package dispatch turns note names into timed MIDI Note On / Note Off pairs.
package dispatch

import (
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/icco/stepseq/internal/device"
	"github.com/icco/stepseq/internal/logging"
	"github.com/icco/stepseq/internal/note"
	"github.com/icco/stepseq/internal/sched"
	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
)

const (
	DefaultVelocity = 100
	DefaultLength   = 100 * time.Millisecond

	allNotesOffCC = 123
	maxChannel    = 16
	maxVelocity   = 127
)

var (
	// ErrChannel is returned for a channel outside 1..16.
	ErrChannel = errors.New("MIDI channel out of range")
	// ErrVelocity is returned for a Note On velocity outside 1..127.
	ErrVelocity = errors.New("MIDI velocity out of range")
)

// ParseVelocity checks that v is a usable Note On velocity. Zero is rejected
// because a Note On with velocity 0 is a Note Off.
func ParseVelocity(v int) (uint8, error) {
	if v < 1 || v > maxVelocity {
		return 0, errors.Wrapf(ErrVelocity, "%d not in 1..%d", v, maxVelocity)
	}
	return uint8(v), nil //nolint:gosec // range checked above
}

// Sender is the output side of a Dispatcher: the current selection and a
// way to reach a specific output.
type Sender interface {
	Selected() (device.Output, bool)
	SendTo(out device.Output, msg []byte) error
}

// Dispatcher sends notes through a Sender and schedules their release.
//
// Every PlayNote schedules its own Note Off, on the output that got the
// Note On. Retriggering a note before the previous Note Off fires lets that
// earlier Note Off cut the new note short.
type Dispatcher struct {
	out      Sender
	sched    sched.Scheduler
	log      *log.Logger
	velocity uint8
	length   time.Duration

	mu sync.Mutex
	// touched holds outputs that got a Note On since the last AllNotesOff.
	touched map[string]device.Output
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithVelocity sets the velocity used by PlayNote.
func WithVelocity(v uint8) Option {
	return func(d *Dispatcher) { d.velocity = v }
}

// WithLength sets the gate length used by PlayNote.
func WithLength(l time.Duration) Option {
	return func(d *Dispatcher) { d.length = l }
}

// New returns a dispatcher sending to out and timing Note Offs on s.
func New(out Sender, s sched.Scheduler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		out:      out,
		sched:    s,
		log:      logging.Discard(),
		velocity: DefaultVelocity,
		length:   DefaultLength,
		touched:  make(map[string]device.Output),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PlayNote plays name on channel with the default velocity and length.
func (d *Dispatcher) PlayNote(name string, channel int) error {
	return d.PlayNoteWith(name, channel, d.velocity, d.length)
}

// PlayNoteWith sends a Note On now and a Note Off after length, both to the
// output selected at call time. Nothing is sent when the note name is
// unknown or the channel or velocity is out of range, and no Note Off is
// scheduled when the Note On could not be sent.
func (d *Dispatcher) PlayNoteWith(name string, channel int, velocity uint8, length time.Duration) error {
	if channel < 1 || channel > maxChannel {
		return errors.Wrapf(ErrChannel, "%d", channel)
	}
	if velocity < 1 || velocity > maxVelocity {
		return errors.Wrapf(ErrVelocity, "%d", velocity)
	}
	key, err := note.Number(name)
	if err != nil {
		d.log.Warn("skipping invalid note", "note", name, "channel", channel)
		return err
	}
	target, ok := d.out.Selected()
	if !ok {
		return errors.Wrapf(device.ErrNoOutput, "note on %s", name)
	}

	ch := uint8(channel - 1) //nolint:gosec // channel is checked above
	on := midi.NoteOn(ch, key, velocity)
	off := midi.NoteOff(ch, key)

	if err := d.out.SendTo(target, on); err != nil {
		return errors.Wrapf(err, "note on %s", name)
	}
	d.mu.Lock()
	d.touched[target.ID] = target
	d.mu.Unlock()

	d.sched.Once(length, func() {
		if err := d.out.SendTo(target, off); err != nil {
			d.log.Warn("note off not sent", "note", name, "channel", channel, "output", target.ID, "err", err)
		}
	})
	return nil
}

// AllNotesOff sends controller 123 on each channel to the selected output
// and to every other output that got a Note On since the last call. Every
// message is tried; the first error is returned.
func (d *Dispatcher) AllNotesOff(channels []int) error {
	var first error
	for _, out := range d.releaseTargets() {
		for _, c := range channels {
			if c < 1 || c > maxChannel {
				continue
			}
			msg := midi.ControlChange(uint8(c-1), allNotesOffCC, 0) //nolint:gosec // c is checked above
			if err := d.out.SendTo(out, msg); err != nil && first == nil {
				first = errors.Wrapf(err, "all notes off on channel %d", c)
			}
		}
	}
	return first
}

// releaseTargets returns the selected output first, then the other touched
// outputs ordered by id, and forgets the touched set.
func (d *Dispatcher) releaseTargets() []device.Output {
	d.mu.Lock()
	touched := d.touched
	d.touched = make(map[string]device.Output)
	d.mu.Unlock()

	var outs []device.Output
	sel, ok := d.out.Selected()
	if ok {
		outs = append(outs, sel)
		delete(touched, sel.ID)
	}
	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		outs = append(outs, touched[id])
	}
	return outs
}
