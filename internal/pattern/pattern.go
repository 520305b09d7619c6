// Package pattern holds the step pattern edited by the user and read by the
// transport clock. A Pattern is immutable: every mutation returns a new
// Pattern that shares the unchanged tracks with the previous one.
package pattern

import (
	"fmt"
	"strings"

	"github.com/icco/stepseq/internal/note"
	"github.com/pkg/errors"
)

const (
	// Resolution is the number of steps per track, one bar of sixteenth notes.
	Resolution = 16

	// DefaultNote is the note given to tracks created by AddTrack.
	DefaultNote = "C4"

	MinChannel = 1
	MaxChannel = 16
)

var (
	ErrUnknownTrack = errors.New("unknown track")
	ErrChannelRange = errors.New("channel out of range")
)

// Steps is the activation sequence of a track.
type Steps [Resolution]bool

// String renders the steps as |x---|----|x---|----|.
func (s Steps) String() string {
	var b strings.Builder
	for i := 0; i < Resolution; i++ {
		if i%4 == 0 {
			b.WriteByte('|')
		}
		if s[i] {
			b.WriteByte('x')
		} else {
			b.WriteByte('-')
		}
	}
	b.WriteByte('|')
	return b.String()
}

// Track is one voice of the pattern. Tracks are never modified after they
// are created; use the Pattern methods to derive new ones.
type Track struct {
	id      string
	note    string
	channel int
	steps   Steps
}

func (t *Track) ID() string { return t.id }
func (t *Track) Note() string { return t.note }
func (t *Track) Channel() int { return t.channel }
func (t *Track) Steps() Steps { return t.steps }
func (t *Track) String() string { return fmt.Sprintf("(%s) %-4s ch%-2d %s", t.id, t.note, t.channel, t.steps) }

// Active reports whether the step at i is on. Out of range indexes are off.
func (t *Track) Active(i int) bool {
	if i < 0 || i >= Resolution {
		return false
	}
	return t.steps[i]
}

// Pattern is an ordered list of tracks.
type Pattern struct {
	tracks []*Track
	nextID int
}

// New returns a pattern with one track per note, all on channel 1. Every
// note must be in the note table.
func New(notes ...string) (*Pattern, error) {
	p := &Pattern{}
	for i, n := range notes {
		if !note.Valid(n) {
			return nil, errors.Wrapf(note.ErrInvalid, "track %d: %q", i+1, n)
		}
		p = p.appendTrack(n, MinChannel, Steps{})
	}
	return p, nil
}

// MustNew is like New but panics on an unknown note.
func MustNew(notes ...string) *Pattern {
	p, err := New(notes...)
	if err != nil {
		panic(err)
	}
	return p
}

// Default returns the eight-track pattern the sequencer starts with.
func Default() *Pattern {
	scale := []string{"C4", "D4", "E4", "F4", "G4", "A4", "B4"}
	notes := make([]string, 8)
	for i := range notes {
		notes[i] = scale[i%len(scale)]
	}
	return MustNew(notes...)
}

// Len returns the number of tracks.
func (p *Pattern) Len() int { return len(p.tracks) }

// At returns the i-th track in playback order.
func (p *Pattern) At(i int) *Track { return p.tracks[i] }

// Tracks returns the tracks in playback order. The slice is a copy.
func (p *Pattern) Tracks() []*Track {
	out := make([]*Track, len(p.tracks))
	copy(out, p.tracks)
	return out
}

// Track looks up a track by id.
func (p *Pattern) Track(id string) (*Track, bool) {
	i := p.index(id)
	if i < 0 {
		return nil, false
	}
	return p.tracks[i], true
}

// ActiveAt returns the tracks whose step i is on.
func (p *Pattern) ActiveAt(i int) []*Track {
	var out []*Track
	for _, t := range p.tracks {
		if t.Active(i) {
			out = append(out, t)
		}
	}
	return out
}

// Channels returns the distinct channels used by the pattern, in track order.
func (p *Pattern) Channels() []int {
	seen := make(map[int]bool)
	var out []int
	for _, t := range p.tracks {
		if !seen[t.channel] {
			seen[t.channel] = true
			out = append(out, t.channel)
		}
	}
	return out
}

// ToggleStep flips one step. Unknown tracks and out of range steps leave the
// pattern unchanged and return p itself.
func (p *Pattern) ToggleStep(id string, step int) *Pattern {
	i := p.index(id)
	if i < 0 || step < 0 || step >= Resolution {
		return p
	}
	t := *p.tracks[i]
	t.steps[step] = !t.steps[step]
	return p.replace(i, &t)
}

// UpdateTrack replaces the note and channel of a track, keeping its steps.
func (p *Pattern) UpdateTrack(id, noteName string, channel int) (*Pattern, error) {
	i := p.index(id)
	if i < 0 {
		return p, errors.Wrapf(ErrUnknownTrack, "%q", id)
	}
	if channel < MinChannel || channel > MaxChannel {
		return p, errors.Wrapf(ErrChannelRange, "%d", channel)
	}
	if !note.Valid(noteName) {
		return p, errors.Wrapf(note.ErrInvalid, "%q", noteName)
	}
	t := *p.tracks[i]
	t.note = noteName
	t.channel = channel
	return p.replace(i, &t), nil
}

// ClearTrack turns every step of a track off.
func (p *Pattern) ClearTrack(id string) *Pattern {
	i := p.index(id)
	if i < 0 || p.tracks[i].steps == (Steps{}) {
		return p
	}
	t := *p.tracks[i]
	t.steps = Steps{}
	return p.replace(i, &t)
}

// AddTrack appends a silent track playing DefaultNote on channel 1.
func (p *Pattern) AddTrack() *Pattern {
	return p.appendTrack(DefaultNote, MinChannel, Steps{})
}

// RemoveTrack deletes a track. Unknown ids return p itself.
func (p *Pattern) RemoveTrack(id string) *Pattern {
	i := p.index(id)
	if i < 0 {
		return p
	}
	tracks := make([]*Track, 0, len(p.tracks)-1)
	tracks = append(tracks, p.tracks[:i]...)
	tracks = append(tracks, p.tracks[i+1:]...)
	return &Pattern{tracks: tracks, nextID: p.nextID}
}

func (p *Pattern) String() string {
	var b strings.Builder
	for _, t := range p.tracks {
		b.WriteString(t.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (p *Pattern) index(id string) int {
	for i, t := range p.tracks {
		if t.id == id {
			return i
		}
	}
	return -1
}

func (p *Pattern) replace(i int, t *Track) *Pattern {
	tracks := make([]*Track, len(p.tracks))
	copy(tracks, p.tracks)
	tracks[i] = t
	return &Pattern{tracks: tracks, nextID: p.nextID}
}

// appendTrack assigns ids from a counter so that removing a track never lets
// a later AddTrack reuse its id.
func (p *Pattern) appendTrack(noteName string, channel int, steps Steps) *Pattern {
	tracks := make([]*Track, len(p.tracks), len(p.tracks)+1)
	copy(tracks, p.tracks)
	tracks = append(tracks, &Track{
		id:      fmt.Sprintf("track-%d", p.nextID),
		note:    noteName,
		channel: channel,
		steps:   steps,
	})
	return &Pattern{tracks: tracks, nextID: p.nextID + 1}
}
