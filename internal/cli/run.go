package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rileyhilliard/gridmon/internal/metrics"
	"github.com/rileyhilliard/gridmon/internal/poller"
	"github.com/spf13/cobra"
)

var runOnce bool

// runCmd is the daemon entry point
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the grid and send passive check results",
	Long: `Run the poll loop in the foreground: every check_interval fetch the sensor
catalog, thresholds and readings, evaluate them, register unknown hosts with
Icinga and send the results through the configured transport.

Stops cleanly on SIGINT or SIGTERM. SIGHUP drops cached thresholds and
SIGUSR2 reopens the log file.

Examples:
  gridmon run
  gridmon run --once --log-level debug
  gridmon run --config /etc/gridmon/gridmon.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context(), cmd.OutOrStdout(), runOnce)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
}

func runDaemon(ctx context.Context, stdout io.Writer, once bool) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	log, closeLog, err := openLog(cfg, !once)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, closeRunner := newRunner(cfg, log)
	defer closeRunner()

	client, dir := newIcinga(cfg, log)
	transport, closeTransport, err := newTransport(cfg, stdout, log)
	if err != nil {
		return err
	}
	defer closeTransport()

	p := poller.New(pollerOptions(cfg), runner, dir, newSink(cfg, transport, log), log,
		poller.WithAuthCheck(client))

	if once {
		_, err := p.RunCycle(ctx)
		return err
	}

	if err := metrics.Server(ctx, cfg.MetricsListen, log); err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-hup:
				p.InvalidateThresholds()
				log.Info("SIGHUP: thresholds will be refetched next cycle")
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("gridmon %s starting, sending via %s", formatVersion(version), transport.Name())
	return p.Run(ctx)
}
