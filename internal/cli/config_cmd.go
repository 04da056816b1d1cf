package cli

import (
	"io"

	"github.com/rileyhilliard/gridmon/internal/config"
	"github.com/spf13/cobra"
)

const maskedSecret = "********"

var (
	configDefaults    bool
	configShowSecrets bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Work with the gridmon config file",
}

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the effective config, or the defaults",
	Long: `Print the config gridmon would run with, after defaults and GRIDMON_*
environment overrides are applied. With --defaults print the built-in
defaults instead, which makes a starting point for a new file:

  gridmon config print --defaults > gridmon.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printConfig(cmd.OutOrStdout(), configDefaults, configShowSecrets)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPrintCmd)
	configPrintCmd.Flags().BoolVar(&configDefaults, "defaults", false, "print built-in defaults instead of the loaded file")
	configPrintCmd.Flags().BoolVar(&configShowSecrets, "show-secrets", false, "don't mask the Icinga password")
}

func printConfig(out io.Writer, defaults, showSecrets bool) error {
	cfg := config.DefaultConfig()
	if !defaults {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if !showSecrets && cfg.Icinga.Password != "" {
		cfg.Icinga.Password = maskedSecret
	}

	data, err := config.Render(cfg)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
