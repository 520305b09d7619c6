package audio

import (
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/pkg/errors"
)

// oto allows a single context per process.
var (
	ctxOnce sync.Once
	ctx     *oto.Context
	ctxErr  error
)

func otoContext() (*oto.Context, error) {
	ctxOnce.Do(func() {
		c, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			ctxErr = errors.Wrap(err, "creating audio context")
			return
		}
		<-ready
		ctx = c
	})
	return ctx, ctxErr
}

// Synth plays a Mixer through the system audio device.
type Synth struct {
	*Mixer
	player *oto.Player
}

// NewSynth opens the audio device and starts streaming silence.
func NewSynth() (*Synth, error) {
	c, err := otoContext()
	if err != nil {
		return nil, err
	}
	m := NewMixer()
	s := &Synth{Mixer: m, player: c.NewPlayer(m)}
	s.player.Play()
	return s, nil
}

// Close silences the synth. The player is reclaimed by oto.
func (s *Synth) Close() error {
	s.AllNotesOff()
	s.player.Pause()
	return nil
}
