// Package sequencer is the state machine the presentation layer drives.
//
// Every action is serialized through one mutex and returns a Snapshot of
// the resulting state. Timer ticks are serialized by the transport clock
// and only read the pattern through an atomic pointer, so playback never
// waits on an edit.
package sequencer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/icco/stepseq/internal/device"
	"github.com/icco/stepseq/internal/dispatch"
	"github.com/icco/stepseq/internal/logging"
	"github.com/icco/stepseq/internal/pattern"
	"github.com/icco/stepseq/internal/sched"
	"github.com/icco/stepseq/internal/transport"
	"github.com/pkg/errors"
)

// Test note parameters.
const (
	TestNote     = "C4"
	TestChannel  = 1
	TestVelocity = 100
	TestLength   = 300 * time.Millisecond
)

// Level is the severity of a notice.
type Level int

const (
	Info Level = iota
	Warning
	Failure
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Failure:
		return "error"
	default:
		return "info"
	}
}

// Notice is a user-visible message kept until dismissed or replaced.
type Notice struct {
	Level Level
	Title string
	Text  string
}

// Snapshot is an immutable view of the whole sequencer.
type Snapshot struct {
	Pattern   *pattern.Pattern
	Transport transport.State
	Devices   device.Selection
	Notice    *Notice
}

// CanPlay reports whether Play would be accepted.
func (s Snapshot) CanPlay() bool {
	return s.Devices.Ready()
}

// Sequencer owns the pattern, the transport and the device selection.
type Sequencer struct {
	log        *log.Logger
	devices    *device.Registry
	dispatcher *dispatch.Dispatcher
	clock      *transport.Clock
	updates    chan struct{}

	// pattern is written under mu and read lock-free by clock ticks.
	pattern atomic.Pointer[pattern.Pattern]

	mu     sync.Mutex
	notice *Notice
}

type options struct {
	log      *log.Logger
	bpm      int
	pattern  *pattern.Pattern
	velocity uint8
	length   time.Duration
}

// Option configures a Sequencer.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithBPM sets the initial tempo.
func WithBPM(bpm int) Option {
	return func(o *options) { o.bpm = bpm }
}

// WithPattern sets the initial pattern instead of the default eight tracks.
func WithPattern(p *pattern.Pattern) Option {
	return func(o *options) { o.pattern = p }
}

// WithVelocity sets the velocity of sequenced notes.
func WithVelocity(v uint8) Option {
	return func(o *options) { o.velocity = v }
}

// WithNoteLength sets how long sequenced notes sound.
func WithNoteLength(d time.Duration) Option {
	return func(o *options) { o.length = d }
}

// New builds a stopped sequencer over gw. Timers are armed on s.
func New(gw device.Gateway, s sched.Scheduler, opts ...Option) *Sequencer {
	o := options{
		log:      logging.Discard(),
		bpm:      transport.DefaultBPM,
		velocity: dispatch.DefaultVelocity,
		length:   dispatch.DefaultLength,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pattern == nil {
		o.pattern = pattern.Default()
	}

	seq := &Sequencer{
		log:     o.log,
		updates: make(chan struct{}, 1),
	}
	seq.pattern.Store(o.pattern)
	seq.devices = device.NewRegistry(gw,
		device.WithLogger(o.log.WithPrefix("device")),
		device.WithOnChange(seq.notify),
	)
	seq.dispatcher = dispatch.New(seq.devices, s,
		dispatch.WithLogger(o.log.WithPrefix("dispatch")),
		dispatch.WithVelocity(o.velocity),
		dispatch.WithLength(o.length),
	)
	seq.clock = transport.New(s, seq.pattern.Load, seq.dispatcher,
		transport.WithLogger(o.log.WithPrefix("transport")),
		transport.WithBPM(o.bpm),
		transport.WithOnStep(func(transport.State) { seq.notify() }),
	)
	return seq
}

// Updates signals after every state change, including every clock tick.
// Signals coalesce: a slow reader sees one pending signal, never a backlog.
func (s *Sequencer) Updates() <-chan struct{} {
	return s.updates
}

// Snapshot returns the current state.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ToggleStep flips one step of a track.
func (s *Sequencer) ToggleStep(trackID string, step int) Snapshot {
	return s.edit(func(p *pattern.Pattern) (*pattern.Pattern, error) {
		return p.ToggleStep(trackID, step), nil
	})
}

// UpdateTrack changes the note and channel of a track. An unknown track, a
// channel outside 1..16 or an unknown note name leaves the pattern unchanged
// and returns an error.
func (s *Sequencer) UpdateTrack(trackID, note string, channel int) (Snapshot, error) {
	var err error
	snap := s.edit(func(p *pattern.Pattern) (*pattern.Pattern, error) {
		np, e := p.UpdateTrack(trackID, note, channel)
		err = e
		return np, e
	})
	return snap, err
}

// AddTrack appends a track playing C4 on channel 1.
func (s *Sequencer) AddTrack() Snapshot {
	return s.edit(func(p *pattern.Pattern) (*pattern.Pattern, error) {
		return p.AddTrack(), nil
	})
}

// RemoveTrack deletes a track. Unknown ids are ignored.
func (s *Sequencer) RemoveTrack(trackID string) Snapshot {
	return s.edit(func(p *pattern.Pattern) (*pattern.Pattern, error) {
		return p.RemoveTrack(trackID), nil
	})
}

// ClearTrack switches every step of a track off.
func (s *Sequencer) ClearTrack(trackID string) Snapshot {
	return s.edit(func(p *pattern.Pattern) (*pattern.Pattern, error) {
		return p.ClearTrack(trackID), nil
	})
}

func (s *Sequencer) edit(fn func(*pattern.Pattern) (*pattern.Pattern, error)) Snapshot {
	s.mu.Lock()
	cur := s.pattern.Load()
	next, err := fn(cur)
	changed := err == nil && next != cur
	if changed {
		s.pattern.Store(next)
	} else if err != nil {
		s.log.Debug("pattern edit rejected", "err", err)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return snap
}

// Play starts playback from step 0. Without a selected output Play is
// rejected with a notice and the clock is not started.
func (s *Sequencer) Play() (Snapshot, error) {
	s.mu.Lock()
	sel := s.devices.Snapshot()
	if !sel.Ready() {
		err := errors.Wrap(device.ErrNoOutput, "cannot play")
		s.notice = noOutputNotice(sel, "Select a MIDI output before starting playback.")
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify()
		return snap, err
	}
	s.clock.Play()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap, nil
}

// Stop halts playback and silences every channel the pattern uses. Note
// Offs already scheduled still fire.
func (s *Sequencer) Stop() Snapshot {
	s.mu.Lock()
	wasPlaying := s.clock.State().Playing
	s.clock.Stop()
	if wasPlaying {
		if err := s.dispatcher.AllNotesOff(s.pattern.Load().Channels()); err != nil {
			s.log.Debug("all notes off not sent", "err", err)
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap
}

// TogglePlay stops when playing and plays otherwise.
func (s *Sequencer) TogglePlay() (Snapshot, error) {
	if s.clock.State().Playing {
		return s.Stop(), nil
	}
	return s.Play()
}

// SetTempo sets the tempo, clamped to [transport.MinBPM, transport.MaxBPM].
func (s *Sequencer) SetTempo(bpm int) Snapshot {
	s.mu.Lock()
	s.clock.SetTempo(bpm)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap
}

// SelectOutput makes an enumerated output current. An empty id clears the
// selection.
func (s *Sequencer) SelectOutput(id string) (Snapshot, error) {
	s.mu.Lock()
	err := s.devices.Select(id)
	if err != nil {
		s.notice = &Notice{Level: Warning, Title: "Unknown Output", Text: err.Error()}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		s.notify()
	}
	return snap, err
}

// RequestAccess initializes the MIDI gateway and selects the first output
// when none is selected yet.
func (s *Sequencer) RequestAccess(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	err := s.devices.RequestAccess(ctx)
	switch {
	case err == nil:
		s.notice = &Notice{Level: Info, Title: "MIDI Connected", Text: "MIDI access granted."}
	case errors.Is(err, device.ErrUnsupported):
		s.notice = &Notice{Level: Failure, Title: "MIDI Not Supported", Text: err.Error()}
	default:
		s.notice = &Notice{Level: Failure, Title: "MIDI Access Failed", Text: err.Error()}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify()
	return snap, err
}

// RefreshDevices re-enumerates outputs. Without access it does nothing.
func (s *Sequencer) RefreshDevices(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	err := s.devices.Refresh(ctx)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap, err
}

// SendTestNote plays C4 on channel 1 for 300ms on the selected output.
func (s *Sequencer) SendTestNote() (Snapshot, error) {
	s.mu.Lock()
	sel := s.devices.Snapshot()
	var err error
	if !sel.Ready() {
		err = errors.Wrap(device.ErrNoOutput, "cannot send test note")
		s.notice = noOutputNotice(sel, "Select a MIDI output to send a test note.")
	} else if err = s.dispatcher.PlayNoteWith(TestNote, TestChannel, TestVelocity, TestLength); err != nil {
		s.notice = &Notice{Level: Failure, Title: "Test Note Failed", Text: err.Error()}
	} else {
		s.notice = &Notice{Level: Info, Title: "Test Note Sent", Text: "Sent " + TestNote + " to " + sel.Selected.Name + "."}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify()
	return snap, err
}

// DismissNotice clears the current notice.
func (s *Sequencer) DismissNotice() Snapshot {
	s.mu.Lock()
	had := s.notice != nil
	s.notice = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if had {
		s.notify()
	}
	return snap
}

// Watch refreshes the device list whenever the gateway reports a change,
// until ctx is done.
func (s *Sequencer) Watch(ctx context.Context) error {
	changes := s.devices.Gateway().Changes(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return ctx.Err()
			}
			if _, err := s.RefreshDevices(ctx); err != nil {
				s.log.Warn("device refresh failed", "err", err)
			}
		}
	}
}

// Close stops playback and releases the gateway.
func (s *Sequencer) Close() error {
	s.Stop()
	return s.devices.Close()
}

func (s *Sequencer) snapshotLocked() Snapshot {
	return Snapshot{
		Pattern:   s.pattern.Load(),
		Transport: s.clock.State(),
		Devices:   s.devices.Snapshot(),
		Notice:    s.notice,
	}
}

func (s *Sequencer) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func noOutputNotice(sel device.Selection, text string) *Notice {
	switch {
	case sel.Unsupported():
		return &Notice{Level: Failure, Title: "MIDI Not Supported", Text: "This system has no usable MIDI output."}
	case !sel.AccessGranted:
		return &Notice{Level: Warning, Title: "MIDI Not Connected", Text: "Connect to MIDI first."}
	default:
		return &Notice{Level: Warning, Title: "No MIDI Output Selected", Text: text}
	}
}
