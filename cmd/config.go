package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var saveConfig bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and flags are
applied.

With --save it is written back to the config file, so flags such as --bpm
and --output become the new defaults:
  stepseq config --bpm 95 --output "IAC Driver Bus 1" --save
`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&saveConfig, "save", false, "write the effective configuration to the config file")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if !saveConfig {
		return nil
	}
	if err := cfg.Save(cfgFile); err != nil {
		return err
	}
	logger.Info("config saved", "path", cfgFile)
	return nil
}
