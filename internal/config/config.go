// Package config loads the stepseq configuration file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/icco/stepseq/internal/dispatch"
	"github.com/icco/stepseq/internal/note"
	"github.com/icco/stepseq/internal/pattern"
	"github.com/icco/stepseq/internal/transport"
	"github.com/pkg/errors"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Backend selects the MIDI gateway.
type Backend string

const (
	BackendRtMidi   Backend = "rtmidi"
	BackendPortMidi Backend = "portmidi"
	BackendSynth    Backend = "synth"
	// BackendAll offers rtmidi ports and the built-in synth together.
	BackendAll Backend = "all"
)

// Backends lists the accepted backend names.
var Backends = []Backend{BackendRtMidi, BackendPortMidi, BackendSynth, BackendAll}

// Duration is a time.Duration written as "100ms" in JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string like \"100ms\"")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrap(err, "parsing duration")
	}
	d.Duration = v
	return nil
}

// TrackConfig is one track of the initial pattern.
type TrackConfig struct {
	Note    string `json:"note"`
	Channel int    `json:"channel,omitempty"`
}

// Config is the main configuration structure.
type Config struct {
	BPM        int           `json:"bpm,omitempty"`
	Output     string        `json:"output,omitempty"` // output name to select on start
	Backend    Backend       `json:"backend,omitempty"`
	Velocity   int           `json:"velocity,omitempty"`
	NoteLength Duration      `json:"noteLength,omitempty"`
	Tracks     []TrackConfig `json:"tracks,omitempty"`
	LogLevel   string        `json:"logLevel,omitempty"`
	LogFile    string        `json:"logFile,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		BPM:        transport.DefaultBPM,
		Backend:    BackendRtMidi,
		Velocity:   dispatch.DefaultVelocity,
		NoteLength: Duration{dispatch.DefaultLength},
		LogLevel:   "info",
	}
}

// Dir returns ~/.config/stepseq.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "finding home directory")
	}
	return filepath.Join(home, ".config", "stepseq"), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LogPath returns the default log file path.
func LogPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stepseq.log"), nil
}

// Load reads the config at path over the defaults. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "writing %s", path) //nolint:gosec // not a secret
}

// Validate reports the first invalid field. Tempos are not clamped here.
func (c *Config) Validate() error {
	if c.BPM < transport.MinBPM || c.BPM > transport.MaxBPM {
		return errors.Wrapf(ErrInvalid, "bpm %d outside %d..%d", c.BPM, transport.MinBPM, transport.MaxBPM)
	}
	if _, err := dispatch.ParseVelocity(c.Velocity); err != nil {
		return errors.Wrapf(ErrInvalid, "velocity: %v", err)
	}
	if c.NoteLength.Duration <= 0 {
		return errors.Wrapf(ErrInvalid, "note length %s must be positive", c.NoteLength)
	}
	if !c.knownBackend() {
		return errors.Wrapf(ErrInvalid, "unknown backend %q", c.Backend)
	}
	for i, t := range c.Tracks {
		if !note.Valid(t.Note) {
			return errors.Wrapf(ErrInvalid, "track %d: unknown note %q", i+1, t.Note)
		}
		if t.Channel != 0 && (t.Channel < pattern.MinChannel || t.Channel > pattern.MaxChannel) {
			return errors.Wrapf(ErrInvalid, "track %d: channel %d outside 1..16", i+1, t.Channel)
		}
	}
	return nil
}

func (c *Config) knownBackend() bool {
	for _, b := range Backends {
		if c.Backend == b {
			return true
		}
	}
	return false
}

// Pattern builds the initial pattern. Without configured tracks it is the
// default eight-track pattern.
func (c *Config) Pattern() (*pattern.Pattern, error) {
	if len(c.Tracks) == 0 {
		return pattern.Default(), nil
	}
	notes := make([]string, len(c.Tracks))
	for i, t := range c.Tracks {
		notes[i] = t.Note
	}
	p, err := pattern.New(notes...)
	if err != nil {
		return nil, err
	}
	for i, t := range c.Tracks {
		if t.Channel == 0 {
			continue
		}
		if p, err = p.UpdateTrack(p.At(i).ID(), t.Note, t.Channel); err != nil {
			return nil, errors.Wrapf(err, "track %d", i+1)
		}
	}
	return p, nil
}
