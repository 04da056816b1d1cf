package cli

import (
	"io"
	"net"
	"os"

	"github.com/rileyhilliard/gridmon/internal/config"
	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/icinga"
	"github.com/rileyhilliard/gridmon/internal/logger"
	"github.com/rileyhilliard/gridmon/internal/notify"
	"github.com/rileyhilliard/gridmon/internal/poller"
	"github.com/rileyhilliard/gridmon/internal/source"
	"github.com/rileyhilliard/gridmon/internal/ui"
	"golang.org/x/term"
)

// loadConfig reads the config named by --config. full also validates the
// Icinga and notify sections, which commands that only evaluate skip.
func loadConfig(full bool) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}

	if full {
		err = config.Validate(cfg)
	} else {
		err = config.ValidateSource(cfg)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// openLog returns the logger for a command. The daemon logs to log_file,
// one-shot commands to stderr.
func openLog(cfg *config.Config, daemon bool) (logger.Logger, func(), error) {
	path := "-"
	if daemon {
		path = cfg.LogFile
	}
	out, err := logger.OpenOutput(path)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(out.Writer, cfg.LogLevel, "gridmon")
	return log, func() { _ = out.Close() }, nil
}

// newRunner runs the source commands locally, or on source.ssh_host when
// one is configured.
func newRunner(cfg *config.Config, log logger.Logger) (source.Runner, func()) {
	if cfg.Source.SSHHost == "" {
		return source.NewLocal("", log), func() {}
	}
	s := source.NewSSH(cfg.Source.SSHHost, "", cfg.Source.Timeout, log)
	return s, func() { _ = s.Close() }
}

func pollerOptions(cfg *config.Config) poller.Options {
	return poller.Options{
		Interval:          cfg.CheckInterval,
		SourceTimeout:     cfg.Source.Timeout,
		ThresholdCacheTTL: cfg.ThresholdCacheTTL,
		CatalogCommand:    config.CommandPath(cfg.CommandRoot, cfg.Commands.Catalog),
		ThresholdsCommand: config.CommandPath(cfg.CommandRoot, cfg.Commands.Thresholds),
		SensorsCommand:    config.CommandPath(cfg.CommandRoot, cfg.Commands.Sensors),
	}
}

func newIcinga(cfg *config.Config, log logger.Logger) (*icinga.Client, *icinga.Directory) {
	client := icinga.NewClient(icinga.ClientOptions{
		Server:    cfg.Icinga.Server,
		Username:  cfg.Icinga.Username,
		Password:  cfg.Icinga.Password,
		VerifyTLS: cfg.Icinga.VerifyTLS,
		Timeout:   cfg.Icinga.Timeout,
	}, log)
	dir := icinga.NewDirectory(client, net.DefaultResolver, icinga.DirectoryOptions{
		Templates: cfg.Icinga.HostTemplates,
		Vars:      cfg.Icinga.HostVars,
		Timeout:   cfg.Icinga.Timeout,
	}, log)
	return client, dir
}

// newTransport builds the configured notify transport. The stdout
// transport renders a table on a terminal and tab lines otherwise.
func newTransport(cfg *config.Config, stdout io.Writer, log logger.Logger) (notify.Transport, func(), error) {
	n := cfg.Notify
	switch n.Transport {
	case config.TransportNSCA:
		return notify.NewNSCA(n.NSCACommand, n.NSCADestHost, n.NSCAConfig, log), func() {}, nil
	case config.TransportStdout:
		var format notify.Formatter
		if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = ui.RenderResults
		}
		return notify.NewConsole(stdout, format), func() {}, nil
	case config.TransportKafka:
		k := notify.NewKafka(notify.KafkaOptions{
			Brokers:      n.Kafka.Brokers,
			Topic:        n.Kafka.Topic,
			WriteTimeout: n.Timeout,
		})
		return k, func() { _ = k.Close() }, nil
	}
	return nil, nil, errors.New(errors.ErrConfig,
		"Unknown notify.transport '"+n.Transport+"'",
		"Use one of: nsca, stdout, kafka.")
}

func newSink(cfg *config.Config, t notify.Transport, log logger.Logger) *notify.Sink {
	return notify.NewSink(t, notify.SinkOptions{
		MirrorFile: cfg.Notify.MirrorFile,
		Timeout:    cfg.Notify.Timeout,
	}, log)
}
