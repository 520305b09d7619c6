package cmd

import (
	"context"
	"time"

	"github.com/icco/stepseq/internal/device"
	"github.com/icco/stepseq/internal/dispatch"
	"github.com/icco/stepseq/internal/sched"
	"github.com/spf13/cobra"
)

var (
	noteChannel  int
	noteVelocity int
	noteLength   time.Duration
)

var noteCmd = &cobra.Command{
	Use:   "note NAME",
	Short: "Send a single note to a MIDI output",
	Long: `Send a single note to a MIDI output and wait for its Note Off.

Example:
  stepseq note C4 --channel 10 --output "IAC Driver Bus 1"
`,
	Args: cobra.ExactArgs(1),
	RunE: runNote,
}

func init() {
	noteCmd.Flags().IntVarP(&noteChannel, "channel", "c", 1, "MIDI channel (1-16)")
	noteCmd.Flags().IntVar(&noteVelocity, "velocity", 0, "note velocity 1-127 (default from config)")
	noteCmd.Flags().DurationVar(&noteLength, "length", 300*time.Millisecond, "how long the note sounds")
	rootCmd.AddCommand(noteCmd)
}

func runNote(cmd *cobra.Command, args []string) error {
	v := noteVelocity
	if v == 0 {
		v = cfg.Velocity
	}
	velocity, err := dispatch.ParseVelocity(v)
	if err != nil {
		return err
	}

	gw, err := newGateway(cfg.Backend)
	if err != nil {
		return err
	}
	reg := device.NewRegistry(gw, device.WithLogger(logger))
	defer reg.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	if err := reg.RequestAccess(ctx); err != nil {
		return err
	}
	if cfg.Output != "" {
		selectByName(reg, cfg.Output)
	}
	out, ok := reg.Selected()
	if !ok {
		return device.ErrNoOutput
	}

	done := make(chan struct{})
	wall := sched.NewWall()
	d := dispatch.New(reg, wall, dispatch.WithLogger(logger))
	if err := d.PlayNoteWith(args[0], noteChannel, velocity, noteLength); err != nil {
		return err
	}
	logger.Info("note sent", "note", args[0], "channel", noteChannel, "output", out.Name)

	// The Note Off is scheduled for noteLength; wait for it before closing.
	wall.Once(noteLength+20*time.Millisecond, func() { close(done) })
	<-done
	return nil
}
