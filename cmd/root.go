package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/icco/stepseq/internal/config"
	"github.com/icco/stepseq/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configPath string
	bpmFlag    int
	outputFlag string
	backend    string
	logLevel   string
	logFile    string

	// cfg, cfgFile and logger are set by loadConfig before any command runs.
	cfg     *config.Config
	cfgFile string
	logger  *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stepseq",
	Short: "A 16-step MIDI sequencer for the terminal",
	Long: `stepseq is a 16-step MIDI drum/note sequencer with a terminal interface.

Each track plays one note on one MIDI channel. Steps are sixteenth notes; the
pattern loops every bar. Notes go to a system MIDI output (rtmidi or PortMidi)
or to the built-in synthesizer.

Running stepseq without a subcommand starts the sequencer.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runPlay,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "config file (default ~/.config/stepseq/config.json)")
	f.IntVar(&bpmFlag, "bpm", 0, "tempo in beats per minute (60-180)")
	f.StringVarP(&outputFlag, "output", "o", "", "name of the MIDI output to select")
	f.StringVarP(&backend, "backend", "b", "", "MIDI backend: rtmidi, portmidi, synth or all")
	f.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&logFile, "log-file", "", "log file used while the sequencer screen is open")
}

// loadConfig reads the config file and applies flags that were set.
func loadConfig(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.Path(); err != nil {
			return err
		}
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("bpm") {
		c.BPM = bpmFlag
	}
	if flags.Changed("output") {
		c.Output = outputFlag
	}
	if flags.Changed("backend") {
		c.Backend = config.Backend(backend)
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("log-file") {
		c.LogFile = logFile
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logging.New(os.Stderr, c.LogLevel)
	if err != nil {
		return err
	}
	cfg, cfgFile, logger = c, path, l
	logger.Debug("config loaded", "path", path, "backend", c.Backend, "bpm", c.BPM)
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
