package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/icco/stepseq/internal/config"
	"github.com/icco/stepseq/internal/dispatch"
	"github.com/icco/stepseq/internal/logging"
	"github.com/icco/stepseq/internal/sched"
	"github.com/icco/stepseq/internal/sequencer"
	"github.com/icco/stepseq/internal/tui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Open the sequencer screen",
	Long: `Open the sequencer screen.

MIDI access is requested on start and the first output is selected, unless
--output names another one. Logs go to ~/.config/stepseq/stepseq.log or the
file given with --log-file, since the screen owns the terminal.`,
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, _ []string) error {
	path := cfg.LogFile
	if path == "" {
		var err error
		if path, err = config.LogPath(); err != nil {
			return err
		}
	}
	f, err := logging.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()
	l, err := logging.New(f, cfg.LogLevel)
	if err != nil {
		return err
	}

	p, err := cfg.Pattern()
	if err != nil {
		return err
	}
	velocity, err := dispatch.ParseVelocity(cfg.Velocity)
	if err != nil {
		return err
	}
	gw, err := newGateway(cfg.Backend)
	if err != nil {
		return err
	}
	seq := sequencer.New(gw, sched.NewWall(),
		sequencer.WithLogger(l),
		sequencer.WithBPM(cfg.BPM),
		sequencer.WithPattern(p),
		sequencer.WithVelocity(velocity),
		sequencer.WithNoteLength(cfg.NoteLength.Duration),
	)
	defer func() {
		if err := seq.Close(); err != nil {
			l.Error("closing MIDI", "err", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		if err := seq.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Warn("device watch stopped", "err", err)
		}
	}()

	prog := tea.NewProgram(tui.New(seq, tui.WithPreferredOutput(cfg.Output)), tea.WithAltScreen(), tea.WithContext(ctx))
	l.Info("sequencer started", "backend", cfg.Backend, "bpm", cfg.BPM)
	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "running sequencer screen")
	}
	return nil
}
