package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BPM != 120 || cfg.Velocity != 100 || cfg.NoteLength.Duration != 100*time.Millisecond {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
	if cfg.Backend != BackendRtMidi {
		t.Errorf("Expected rtmidi backend, got %q", cfg.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"bpm": 95, "noteLength": "250ms", "tracks": [{"note": "A2", "channel": 10}, {"note": "D#3"}]}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BPM != 95 {
		t.Errorf("Expected bpm 95, got %d", cfg.BPM)
	}
	if cfg.NoteLength.Duration != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %s", cfg.NoteLength)
	}
	if cfg.Velocity != 100 {
		t.Errorf("Expected default velocity to survive, got %d", cfg.Velocity)
	}

	p, err := cfg.Pattern()
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 2 {
		t.Fatalf("Expected 2 tracks, got %d", p.Len())
	}
	if tr := p.At(0); tr.Note() != "A2" || tr.Channel() != 10 {
		t.Errorf("Expected A2 on channel 10, got %s", tr)
	}
	if tr := p.At(1); tr.Note() != "D#3" || tr.Channel() != 1 {
		t.Errorf("Expected D#3 on channel 1, got %s", tr)
	}
}

func TestLoadBadFile(t *testing.T) {
	tests := []string{
		`{"bpm": "fast"}`,
		`{"noteLength": 100}`,
		`{"noteLength": "soon"}`,
		`not json`,
	}
	for _, data := range tests {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("Load(%s): Expected an error", data)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"slow", func(c *Config) { c.BPM = 59 }},
		{"fast", func(c *Config) { c.BPM = 181 }},
		{"silent", func(c *Config) { c.Velocity = 0 }},
		{"loud", func(c *Config) { c.Velocity = 128 }},
		{"no length", func(c *Config) { c.NoteLength.Duration = 0 }},
		{"backend", func(c *Config) { c.Backend = "alsa" }},
		{"note", func(c *Config) { c.Tracks = []TrackConfig{{Note: "Cb4"}} }},
		{"channel", func(c *Config) { c.Tracks = []TrackConfig{{Note: "C4", Channel: 17}} }},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.modify(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: Expected ErrInvalid, got %v", tt.name, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Output = "IAC Driver Bus 1"
	cfg.NoteLength.Duration = 80 * time.Millisecond
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Output != cfg.Output || got.NoteLength != cfg.NoteLength {
		t.Errorf("Expected %+v, got %+v", cfg, got)
	}
}

func TestDefaultPattern(t *testing.T) {
	p, err := Default().Pattern()
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 8 {
		t.Errorf("Expected the default 8 tracks, got %d", p.Len())
	}
}
