package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/notify"
	"github.com/rileyhilliard/gridmon/internal/poller"
	"github.com/rileyhilliard/gridmon/internal/ui"
	"github.com/spf13/cobra"
)

// Command-specific flags
var (
	checkRaw  bool
	checkJSON bool
)

// checkCmd evaluates one cycle without touching Icinga
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate one cycle and print the results",
	Long: `Fetch the sensor catalog, thresholds and readings once and print what
would be sent. Nothing is registered with Icinga and nothing is sent, so only
the commands section of the config has to be filled in.

Examples:
  gridmon check
  gridmon check --raw | grep CRITICAL
  gridmon check --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), cmd.OutOrStdout(), checkRaw, checkJSON)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkRaw, "raw", false, "print the tab-separated lines send_nsca would get")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print results as JSON")
	checkCmd.MarkFlagsMutuallyExclusive("raw", "json")
}

func runCheck(ctx context.Context, out io.Writer, raw, asJSON bool) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return jsonOr(out, asJSON, err)
	}
	log, closeLog, err := openLog(cfg, false)
	if err != nil {
		return jsonOr(out, asJSON, err)
	}
	defer closeLog()

	runner, closeRunner := newRunner(cfg, log)
	defer closeRunner()

	report, err := poller.New(pollerOptions(cfg), runner, nil, nil, log).Check(ctx)
	if err != nil {
		return jsonOr(out, asJSON, err)
	}

	switch {
	case asJSON:
		return WriteJSONSuccess(out, report.Results)
	case raw:
		_, err = out.Write(notify.EncodeLines(report.Results))
		return err
	}
	_, err = fmt.Fprint(out, ui.RenderResults(report.Results))
	return err
}

// jsonOr reports err as a JSON envelope in JSON mode and exits 1 without
// further output; otherwise err is returned as is.
func jsonOr(out io.Writer, asJSON bool, err error) error {
	if !asJSON {
		return err
	}
	if werr := WriteJSONFromError(out, err); werr != nil {
		return werr
	}
	return errors.NewExitError(1)
}
