package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/poller"
	"github.com/rileyhilliard/gridmon/internal/ui"
	"github.com/spf13/cobra"
)

// syncCmd registers missing hosts without sending results
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Register hosts Icinga doesn't know yet",
	Long: `Run one cycle up to host registration: every host with evaluated sensors
that Icinga doesn't have is created with the configured templates and vars.
No results are sent.

Examples:
  gridmon sync
  gridmon sync --log-level debug`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(ctx context.Context, out io.Writer) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	log, closeLog, err := openLog(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	runner, closeRunner := newRunner(cfg, log)
	defer closeRunner()
	_, dir := newIcinga(cfg, log)

	report, err := poller.New(pollerOptions(cfg), runner, dir, nil, log).Sync(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(out, ui.RenderRegistration(*report.Registration))

	if n := len(report.Registration.Failed); n > 0 {
		return errors.New(errors.ErrRegistration,
			fmt.Sprintf("%d hosts couldn't be registered", n),
			"Run with --log-level debug for the Icinga responses.")
	}
	return nil
}
