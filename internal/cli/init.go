package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/gridmon/internal/config"
	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/source"
	"github.com/rileyhilliard/gridmon/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Path           string // Where to write the config
	SSHHost        string // Scheduler head node; empty runs commands locally
	IcingaServer   string
	IcingaUser     string
	NSCADestHost   string
	Transport      string
	Overwrite      bool // Overwrite existing config without asking
	NonInteractive bool // Skip prompts, use flags and defaults

	// sshConfigPath is read for host alias suggestions.
	sshConfigPath string
}

var initOpts InitOptions

// initCmd creates a new gridmon.yaml
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create gridmon.yaml",
	Long: `Create a gridmon.yaml with sensible defaults, asking for the Icinga API
and where the Grid Engine commands run. The Icinga password is best supplied
through GRIDMON_ICINGA_PASSWORD rather than written to the file.

Examples:
  gridmon init
  gridmon init --non-interactive --icinga-server https://icinga:5665 --nsca-dest nagios
  gridmon init --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := initOpts
		if opts.Path == "" {
			opts.Path = cfgFile
		}
		if !opts.NonInteractive && !term.IsTerminal(int(os.Stdin.Fd())) {
			opts.NonInteractive = true
		}
		return Init(cmd.OutOrStdout(), opts)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initOpts.SSHHost, "ssh-host", "", "run source commands on this SSH host or alias")
	initCmd.Flags().StringVar(&initOpts.IcingaServer, "icinga-server", "", "Icinga 2 API URL, e.g. https://icinga:5665")
	initCmd.Flags().StringVar(&initOpts.IcingaUser, "icinga-user", "", "Icinga API user")
	initCmd.Flags().StringVar(&initOpts.NSCADestHost, "nsca-dest", "", "host send_nsca delivers to")
	initCmd.Flags().StringVar(&initOpts.Transport, "transport", "", "notify transport: nsca, stdout or kafka")
	initCmd.Flags().BoolVar(&initOpts.Overwrite, "force", false, "overwrite an existing config")
	initCmd.Flags().BoolVar(&initOpts.NonInteractive, "non-interactive", false, "don't prompt, use flags and defaults")
}

// Init writes a new config file built from opts, prompting for anything
// missing unless opts.NonInteractive is set.
func Init(out io.Writer, opts InitOptions) error {
	path := opts.Path
	if path == "" {
		path = config.ConfigFileName
	}
	if opts.sshConfigPath == "" {
		opts.sshConfigPath = source.DefaultSSHConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !opts.Overwrite {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", path),
				"Use --force to overwrite")
		}

		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", path)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if opts.Transport == "" {
		opts.Transport = cfg.Notify.Transport
	}

	if !opts.NonInteractive {
		if err := promptInit(&opts); err != nil {
			return err
		}
	}

	if opts.Transport != config.TransportNSCA && opts.Transport != config.TransportStdout &&
		opts.Transport != config.TransportKafka {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown transport '%s'", opts.Transport),
			"Use one of: nsca, stdout, kafka.")
	}

	cfg.Source.SSHHost = strings.TrimSpace(opts.SSHHost)
	cfg.Icinga.Server = strings.TrimSpace(opts.IcingaServer)
	cfg.Icinga.Username = strings.TrimSpace(opts.IcingaUser)
	cfg.Notify.Transport = opts.Transport
	cfg.Notify.NSCADestHost = strings.TrimSpace(opts.NSCADestHost)

	if err := config.Write(cfg, path); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Created %s\n", ui.SymbolOK, path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  export GRIDMON_ICINGA_PASSWORD=...")
	fmt.Fprintln(out, "  gridmon check    # evaluate once without touching Icinga")
	fmt.Fprintln(out, "  gridmon run      # start polling")
	return nil
}

// promptInit asks for the settings a new config needs.
func promptInit(opts *InitOptions) error {
	var groups []*huh.Group

	aliases, _ := source.ConfiguredHosts(opts.sshConfigPath)
	if len(aliases) > 0 && opts.SSHHost == "" {
		options := []huh.Option[string]{huh.NewOption("Run commands on this machine", "")}
		for _, a := range aliases {
			options = append(options, huh.NewOption(a, a))
		}
		groups = append(groups, huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where do the Grid Engine commands run?").
				Description("Hosts from your SSH config").
				Options(options...).
				Value(&opts.SSHHost),
		))
	} else {
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title("SSH host for Grid Engine commands (optional)").
				Description("Hostname, user@host or SSH config alias; leave empty to run locally").
				Value(&opts.SSHHost),
		))
	}

	groups = append(groups,
		huh.NewGroup(
			huh.NewInput().
				Title("Icinga 2 API URL").
				Placeholder("https://icinga.example.com:5665").
				Value(&opts.IcingaServer).
				Validate(validateServerURL),
			huh.NewInput().
				Title("Icinga API user").
				Value(&opts.IcingaUser).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("user is required")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How are results sent?").
				Options(
					huh.NewOption("send_nsca", config.TransportNSCA),
					huh.NewOption("Kafka", config.TransportKafka),
					huh.NewOption("Print to stdout (dry run)", config.TransportStdout),
				).
				Value(&opts.Transport),
		),
	)

	if err := huh.NewForm(groups...).Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Check terminal compatibility or use --non-interactive flag")
	}

	if opts.Transport == config.TransportNSCA && opts.NSCADestHost == "" {
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("NSCA destination host").
				Description("The host send_nsca delivers results to").
				Value(&opts.NSCADestHost).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("destination host is required for send_nsca")
					}
					return nil
				}),
		))
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Check terminal compatibility or use --non-interactive flag")
		}
	}
	return nil
}

func validateServerURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("expected a URL like https://icinga.example.com:5665")
	}
	return nil
}
