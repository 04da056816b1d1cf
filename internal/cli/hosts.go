package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/icinga"
	"github.com/rileyhilliard/gridmon/internal/ui"
	"github.com/spf13/cobra"
)

var hostsRemoveService string

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Inspect and prune Icinga hosts",
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List hosts Icinga knows about",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listHosts(cmd.Context(), cmd.OutOrStdout())
	},
}

var hostsRemoveCmd = &cobra.Command{
	Use:   "remove <host>",
	Short: "Remove a host, or one of its services, from Icinga",
	Long: `Remove a host and all its services from Icinga, or with --service just
one service of the host.

Examples:
  gridmon hosts remove node17
  gridmon hosts remove node17 --service load_avg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return removeHost(cmd.Context(), cmd.OutOrStdout(), args[0], hostsRemoveService)
	},
}

func init() {
	rootCmd.AddCommand(hostsCmd)
	hostsCmd.AddCommand(hostsListCmd)
	hostsCmd.AddCommand(hostsRemoveCmd)
	hostsRemoveCmd.Flags().StringVar(&hostsRemoveService, "service", "", "remove only this service")
}

func listHosts(ctx context.Context, out io.Writer) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	log, closeLog, err := openLog(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	_, dir := newIcinga(cfg, log)
	hosts, err := dir.Hostnames(ctx)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrRegistration,
			"Couldn't list Icinga hosts",
			"Check icinga.server and the credentials.")
	}
	fmt.Fprint(out, ui.RenderHosts(hosts))
	return nil
}

func removeHost(ctx context.Context, out io.Writer, host, service string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	log, closeLog, err := openLog(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	_, dir := newIcinga(cfg, log)

	target := host
	var res icinga.DeleteResult
	if service == "" {
		res, err = dir.RemoveHost(ctx, host)
	} else {
		target = host + "!" + service
		res, err = dir.RemoveService(ctx, host, service)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s\n", target, res)
	if res == icinga.DeleteNotFound {
		return errors.NewExitError(1)
	}
	return nil
}
