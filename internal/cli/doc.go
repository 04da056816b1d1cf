// Package cli implements the gridmon command-line interface.
//
// Each command is a cobra.Command registered on rootCmd from an init
// function. Commands build their collaborators from the config file with
// the helpers in app.go and hand the work to the poller and icinga
// packages.
//
// # Command Structure
//
//	gridmon run [--once]           - Poll the grid and send passive check results
//	gridmon check [--raw|--json]   - Evaluate one cycle and print the results
//	gridmon sync                   - Evaluate one cycle and register missing hosts
//	gridmon hosts list             - List hosts Icinga knows about
//	gridmon hosts remove <host>    - Remove a host or one of its services
//	gridmon config print           - Print the effective or default config
//	gridmon init                   - Create gridmon.yaml
//	gridmon version                - Print version information
//
// # Flag Handling
//
// Global flags (--config, --log-level, --no-color) are defined on the
// root command and available to all subcommands.
package cli
