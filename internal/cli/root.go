package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/ui"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile      string
	logLevelFlag string
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "gridmon",
	Short: "Grid Engine sensor checks for Icinga",
	Long: `gridmon reads load sensor values from a Grid Engine cluster, compares
them against per-host thresholds and sends the outcome to Icinga as passive
check results. Hosts Icinga doesn't know yet are registered on the way.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			ui.DisableColors()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./gridmon.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override log_level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}

	if code, ok := errors.GetExitCode(err); ok {
		os.Exit(code)
	}

	msg := err.Error()
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprint(os.Stderr, msg)
	if isUnknownCommandError(err) {
		if name := extractUnknownCommand(err); name != "" {
			fmt.Fprintf(os.Stderr, "\n  '%s' isn't a gridmon command. Run 'gridmon --help' for the list.\n", name)
		}
	}
	os.Exit(exitCodeFor(err))
}

// exitCodeFor returns 2 for configuration problems and 1 for everything
// else, so service managers can tell a bad deployment from a bad cycle.
func exitCodeFor(err error) int {
	if errors.IsCode(err, errors.ErrConfig) {
		return 2
	}
	return 1
}

// isUnknownCommandError checks if the error is cobra's unknown command or flag error.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unknown command") ||
		strings.Contains(msg, "unknown flag") ||
		strings.Contains(msg, "unknown shorthand flag")
}

// extractUnknownCommand pulls the command name out of
// `unknown command "foo" for "gridmon"`.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
