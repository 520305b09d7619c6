// Package synth is a device gateway that plays on the built-in software
// synthesizer.
package synth

import (
	"context"
	"sync"

	"github.com/icco/stepseq/internal/audio"
	"github.com/icco/stepseq/internal/device"
	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
)

// Output is the single output offered by the gateway.
var Output = device.Output{ID: "synth", Name: "Built-in Synth"}

// allNotesOffCC is the channel mode controller for All Notes Off.
const allNotesOffCC = 123

// Voice is the part of a synthesizer the gateway drives.
type Voice interface {
	NoteOn(channel, note, velocity uint8)
	NoteOff(channel, note uint8)
	AllNotesOff()
	Close() error
}

var _ device.Gateway = (*Gateway)(nil)

// Gateway plays messages on a software synthesizer instead of a MIDI port.
type Gateway struct {
	open func() (Voice, error)

	mu    sync.Mutex
	voice Voice
}

// New returns a gateway over the oto-backed audio synth. The audio device is
// opened by RequestAccess.
func New() *Gateway {
	return NewWith(func() (Voice, error) { return audio.NewSynth() })
}

// NewWith returns a gateway that opens its voice with open.
func NewWith(open func() (Voice, error)) *Gateway {
	return &Gateway{open: open}
}

func (s *Gateway) RequestAccess(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voice != nil {
		return nil
	}
	v, err := s.open()
	if err != nil {
		return errors.Wrapf(device.ErrUnsupported, "audio output: %v", err)
	}
	s.voice = v
	return ctx.Err()
}

func (s *Gateway) Outputs(ctx context.Context) ([]device.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voice == nil {
		return nil, ctx.Err()
	}
	return []device.Output{Output}, ctx.Err()
}

// Send decodes Note On, Note Off and All Notes Off; other messages are
// ignored.
func (s *Gateway) Send(out device.Output, msg []byte) error {
	if out.ID != Output.ID {
		return errors.Wrapf(device.ErrUnknownOutput, "%q", out.ID)
	}
	s.mu.Lock()
	v := s.voice
	s.mu.Unlock()
	if v == nil {
		return device.ErrNoOutput
	}

	var channel, key, velocity uint8
	m := midi.Message(msg)
	switch {
	case m.GetNoteOn(&channel, &key, &velocity):
		v.NoteOn(channel, key, velocity)
	case m.GetNoteOff(&channel, &key, &velocity):
		v.NoteOff(channel, key)
	case m.GetControlChange(&channel, &key, &velocity) && key == allNotesOffCC:
		v.AllNotesOff()
	}
	return nil
}

// Changes never fires: the synth is always present once opened.
func (s *Gateway) Changes(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (s *Gateway) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voice == nil {
		return nil
	}
	err := s.voice.Close()
	s.voice = nil
	return err
}
