package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/icco/stepseq/internal/audio"
	"github.com/icco/stepseq/internal/note"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var (
	monitorName  string
	monitorSynth bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Open a virtual MIDI input and log what it receives",
	Long: `Open a virtual MIDI input and log every message it receives.

The port shows up as a MIDI output in other software, including stepseq
itself, so it can be used to check what a pattern sends. With --synth the
notes are also played on the built-in synthesizer.

Example:
  stepseq monitor --name "stepseq monitor" --synth
`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVarP(&monitorName, "name", "n", "stepseq monitor", "name of the virtual MIDI port")
	monitorCmd.Flags().BoolVar(&monitorSynth, "synth", false, "play received notes on the built-in synth")
	rootCmd.AddCommand(monitorCmd)
}

// noteSink receives decoded notes. audio.Synth is one.
type noteSink interface {
	NoteOn(channel, key, velocity uint8)
	NoteOff(channel, key uint8)
	AllNotesOff()
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	var sink noteSink
	if monitorSynth {
		s, err := audio.NewSynth()
		if err != nil {
			return errors.Wrap(err, "initializing audio")
		}
		defer s.Close()
		sink = s
	}

	driver, err := rtmididrv.New()
	if err != nil {
		return errors.Wrap(err, "initializing MIDI driver")
	}
	defer driver.Close()

	in, err := driver.OpenVirtualIn(monitorName)
	if err != nil {
		return errors.Wrap(err, "creating virtual MIDI port")
	}
	defer in.Close()

	stop, err := in.Listen(func(data []byte, _ int32) {
		handleMonitored(midi.Message(data), sink)
	}, drivers.ListenConfig{})
	if err != nil {
		return errors.Wrap(err, "listening on virtual MIDI port")
	}
	defer stop()

	logger.Info("listening", "port", in.String())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-cmd.Context().Done():
	}
	logger.Info("stopping")
	return nil
}

// handleMonitored logs one received message and forwards notes to sink,
// which may be nil.
func handleMonitored(msg midi.Message, sink noteSink) {
	var channel, key, velocity uint8
	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		logger.Info("note on", "channel", channel+1, "note", note.Name(key), "velocity", velocity)
		if sink != nil {
			sink.NoteOn(channel, key, velocity)
		}
	case msg.GetNoteEnd(&channel, &key):
		logger.Info("note off", "channel", channel+1, "note", note.Name(key))
		if sink != nil {
			sink.NoteOff(channel, key)
		}
	case msg.GetControlChange(&channel, &key, &velocity):
		logger.Info("control change", "channel", channel+1, "controller", key, "value", velocity)
		if key == 123 && sink != nil {
			sink.AllNotesOff()
		}
	default:
		logger.Debug("message", "type", msg.Type(), "bytes", msg.String())
	}
}
