package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/icco/stepseq/internal/device"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the MIDI outputs of the selected backend",
	RunE:  runDevices,
}

var (
	selectedMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, _ []string) error {
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

	sel := reg.Snapshot()
	out := cmd.OutOrStdout()
	if len(sel.Outputs) == 0 {
		fmt.Fprintln(out, "No MIDI outputs found.")
		return nil
	}
	for _, o := range sel.Outputs {
		mark := "  "
		if sel.HasSelected && sel.Selected.ID == o.ID {
			mark = selectedMark.Render("* ")
		}
		fmt.Fprintf(out, "%s%s %s\n", mark, o.Name, idStyle.Render("("+o.ID+")"))
	}
	return nil
}

// selectByName selects the first output called name. It reports whether one
// was found.
func selectByName(reg *device.Registry, name string) bool {
	for _, o := range reg.Snapshot().Outputs {
		if o.Name == name || o.ID == name {
			return reg.Select(o.ID) == nil
		}
	}
	logger.Warn("output not found, keeping the default", "output", name)
	return false
}
