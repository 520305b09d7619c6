// Package audio renders MIDI notes to the system audio output. It backs the
// "Built-in Synth" output so the sequencer can be heard without hardware.
package audio

import (
	"math"
	"sync"
)

const (
	sampleRate   = 44100
	channelCount = 2 // stereo
	bitDepth     = 2 // 16-bit

	maxVoices      = 64
	attackPerFrame = 0.001
	releaseFactor  = 0.9995
	silence        = 0.001
	voiceGain      = 0.2
)

// Wave is an oscillator shape.
type Wave int

const (
	Sine Wave = iota
	Square
	Sawtooth
	Triangle
)

type voice struct {
	channel   uint8
	note      uint8
	velocity  uint8
	freq      float64
	phase     float64
	env       float64
	releasing bool
	active    bool
}

// Mixer is a polyphonic oscillator bank producing signed 16-bit
// little-endian stereo frames. It is safe for concurrent use.
type Mixer struct {
	mu     sync.Mutex
	voices []*voice
	volume float64
	waves  [16]Wave
}

// NewMixer returns a mixer with the default channel voicing: channel 1 sine,
// 2 triangle, 3 sawtooth, 4 square, the rest sine.
func NewMixer() *Mixer {
	m := &Mixer{volume: 0.3}
	m.waves[1] = Triangle
	m.waves[2] = Sawtooth
	m.waves[3] = Square
	return m
}

// NoteOn starts a voice. Velocity zero is a note off. When all voices are
// busy the oldest is reused.
func (m *Mixer) NoteOn(channel, note, velocity uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if velocity == 0 {
		m.releaseLocked(channel, note)
		return
	}

	var v *voice
	for _, cand := range m.voices {
		if !cand.active {
			v = cand
			break
		}
	}
	if v == nil {
		if len(m.voices) < maxVoices {
			v = &voice{}
			m.voices = append(m.voices, v)
		} else {
			v = m.voices[0]
		}
	}
	*v = voice{
		channel:  channel & 0x0F,
		note:     note,
		velocity: velocity,
		freq:     frequency(note),
		active:   true,
	}
}

// NoteOff releases the first sounding voice for channel and note.
func (m *Mixer) NoteOff(channel, note uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(channel&0x0F, note)
}

func (m *Mixer) releaseLocked(channel, note uint8) {
	for _, v := range m.voices {
		if v.active && !v.releasing && v.channel == channel && v.note == note {
			v.releasing = true
			return
		}
	}
}

// AllNotesOff releases every voice.
func (m *Mixer) AllNotesOff() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.voices {
		if v.active {
			v.releasing = true
		}
	}
}

// Sounding returns the number of active voices, including releasing ones.
func (m *Mixer) Sounding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.voices {
		if v.active {
			n++
		}
	}
	return n
}

// SetVolume sets the master volume, clamped to [0, 1].
func (m *Mixer) SetVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = math.Max(0, math.Min(1, vol))
}

// Read fills buf with whole frames and implements io.Reader for oto.
func (m *Mixer) Read(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame := channelCount * bitDepth
	frames := len(buf) / frame
	for i := 0; i < frames; i++ {
		s := int16(m.nextSampleLocked() * math.MaxInt16)
		idx := i * frame
		buf[idx] = byte(s)
		buf[idx+1] = byte(s >> 8)
		buf[idx+2] = byte(s)
		buf[idx+3] = byte(s >> 8)
	}
	return frames * frame, nil
}

func (m *Mixer) nextSampleLocked() float64 {
	var sum float64
	for _, v := range m.voices {
		if !v.active {
			continue
		}
		gain := float64(v.velocity) / 127.0
		sum += oscillate(m.waves[v.channel], v.phase) * gain * v.env * voiceGain

		v.phase += v.freq / sampleRate
		if v.phase >= 1 {
			v.phase--
		}

		switch {
		case v.releasing:
			v.env *= releaseFactor
			if v.env < silence {
				v.active = false
			}
		case v.env < 1:
			v.env = math.Min(1, v.env+attackPerFrame)
		}
	}
	return math.Max(-1, math.Min(1, sum*m.volume))
}

func oscillate(w Wave, phase float64) float64 {
	switch w {
	case Square:
		if phase < 0.5 {
			return 0.8
		}
		return -0.8
	case Sawtooth:
		return 2*phase - 1
	case Triangle:
		if phase < 0.5 {
			return 4*phase - 1
		}
		return 3 - 4*phase
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// frequency converts a MIDI note number to Hz, A4 = 440.
func frequency(note uint8) float64 {
	return 440.0 * math.Pow(2.0, (float64(note)-69.0)/12.0)
}
