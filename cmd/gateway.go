package cmd

import (
	"github.com/icco/stepseq/internal/config"
	"github.com/icco/stepseq/internal/device"
	"github.com/icco/stepseq/internal/device/portmidi"
	"github.com/icco/stepseq/internal/device/rtmidi"
	"github.com/icco/stepseq/internal/device/synth"
	"github.com/pkg/errors"
)

// newGateway returns the gateway for the configured backend.
func newGateway(b config.Backend) (device.Gateway, error) {
	switch b {
	case config.BackendRtMidi:
		return rtmidi.New(), nil
	case config.BackendPortMidi:
		return portmidi.New(), nil
	case config.BackendSynth:
		return synth.New(), nil
	case config.BackendAll:
		return device.NewMulti().
			Add(string(config.BackendRtMidi), rtmidi.New()).
			Add(string(config.BackendSynth), synth.New()), nil
	}
	return nil, errors.Errorf("unknown backend %q", b)
}
