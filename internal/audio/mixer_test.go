package audio

import (
	"math"
	"testing"
)

func TestMixerVoices(t *testing.T) {
	m := NewMixer()
	m.NoteOn(0, 60, 100)
	m.NoteOn(1, 64, 100)
	if got := m.Sounding(); got != 2 {
		t.Fatalf("Expected 2 sounding voices, got %d", got)
	}

	buf := make([]byte, 4*1024)
	n, err := m.Read(buf)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if n != len(buf) {
		t.Errorf("Expected %d bytes, got %d", len(buf), n)
	}

	nonZero := false
	for _, b := range buf {
		if b != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("Expected audible output while notes are on")
	}

	// Velocity zero acts as note off.
	m.NoteOn(0, 60, 0)
	m.NoteOff(1, 64)
	for i := 0; i < 50 && m.Sounding() > 0; i++ {
		if _, err := m.Read(buf); err != nil {
			t.Fatalf("Read returned error: %v", err)
		}
	}
	if got := m.Sounding(); got != 0 {
		t.Errorf("Expected voices to decay after note off, %d still sounding", got)
	}
}

func TestMixerVoiceStealing(t *testing.T) {
	m := NewMixer()
	for i := 0; i < maxVoices+10; i++ {
		m.NoteOn(0, uint8(i%128), 100)
	}
	if got := m.Sounding(); got != maxVoices {
		t.Errorf("Expected %d voices, got %d", maxVoices, got)
	}

	m.AllNotesOff()
	buf := make([]byte, 4*4096)
	for i := 0; i < 50 && m.Sounding() > 0; i++ {
		_, _ = m.Read(buf)
	}
	if got := m.Sounding(); got != 0 {
		t.Errorf("Expected silence after all notes off, %d still sounding", got)
	}
}

func TestMixerPartialFrame(t *testing.T) {
	m := NewMixer()
	n, _ := m.Read(make([]byte, 6))
	if n != 4 {
		t.Errorf("Expected one whole frame (4 bytes), got %d", n)
	}
}

func TestFrequency(t *testing.T) {
	tests := []struct {
		note uint8
		want float64
	}{
		{69, 440},
		{81, 880},
		{57, 220},
		{60, 261.6256},
	}
	for _, tt := range tests {
		if got := frequency(tt.note); math.Abs(got-tt.want) > 0.001 {
			t.Errorf("Expected note %d = %.4f Hz, got %.4f", tt.note, tt.want, got)
		}
	}
}

func TestSetVolumeClamps(t *testing.T) {
	m := NewMixer()
	m.SetVolume(2)
	if m.volume != 1 {
		t.Errorf("Expected volume 1, got %f", m.volume)
	}
	m.SetVolume(-1)
	if m.volume != 0 {
		t.Errorf("Expected volume 0, got %f", m.volume)
	}
}
