package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/logger"
)

// Validate checks the config for errors and returns structured error messages.
// Only the settings a poll cycle cannot do without are mandatory.
func Validate(cfg *Config) error {
	if err := ValidateSource(cfg); err != nil {
		return err
	}

	if err := validateIcinga(cfg.Icinga); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(),
			"Check the 'icinga' section in gridmon.yaml, or set GRIDMON_ICINGA_* variables.")
	}

	if err := validateNotify(cfg.Notify); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(),
			"Check the 'notify' section in gridmon.yaml.")
	}

	return nil
}

// ValidateSource checks only what fetching and evaluating need, for
// commands that never talk to Icinga or send results.
func ValidateSource(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	if err := validateIntervals(cfg); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(),
			"Durations take a unit (like '2m' or '30s'); bare numbers are seconds.")
	}

	if !logger.ValidLevel(cfg.LogLevel) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown log_level '%s'", cfg.LogLevel),
			"Use one of: debug, info, warn, error.")
	}

	if err := validateCommands(cfg.Commands); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(),
			"Check the 'commands' section in gridmon.yaml.")
	}

	return nil
}

func validateIntervals(cfg *Config) error {
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"check_interval", cfg.CheckInterval},
		{"source.timeout", cfg.Source.Timeout},
		{"icinga.timeout", cfg.Icinga.Timeout},
		{"notify.timeout", cfg.Notify.Timeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.d)
		}
	}
	if cfg.ThresholdCacheTTL < 0 {
		return fmt.Errorf("threshold_cache_ttl can't be negative, got %s", cfg.ThresholdCacheTTL)
	}
	return nil
}

func validateCommands(c CommandsConfig) error {
	if strings.TrimSpace(c.Catalog) == "" {
		return fmt.Errorf("commands.catalog is empty")
	}
	if strings.TrimSpace(c.Thresholds) == "" {
		return fmt.Errorf("commands.thresholds is empty")
	}
	if strings.TrimSpace(c.Sensors) == "" {
		return fmt.Errorf("commands.sensors is empty")
	}
	return nil
}

func validateIcinga(c IcingaConfig) error {
	if c.Server == "" {
		return fmt.Errorf("icinga.server is required")
	}
	u, err := url.Parse(c.Server)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("icinga.server '%s' isn't a URL like https://icinga.example.com:5665", c.Server)
	}
	if c.Username == "" {
		return fmt.Errorf("icinga.username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("icinga.password is required")
	}
	return nil
}

func validateNotify(n NotifyConfig) error {
	switch n.Transport {
	case TransportNSCA:
		if n.NSCADestHost == "" {
			return fmt.Errorf("notify.nsca_dest_host is required for the nsca transport")
		}
		if n.NSCACommand == "" {
			return fmt.Errorf("notify.nsca_command is required for the nsca transport")
		}
	case TransportKafka:
		if len(n.Kafka.Brokers) == 0 {
			return fmt.Errorf("notify.kafka.brokers needs at least one broker for the kafka transport")
		}
		if n.Kafka.Topic == "" {
			return fmt.Errorf("notify.kafka.topic is required for the kafka transport")
		}
	case TransportStdout:
	default:
		return fmt.Errorf("unknown notify.transport '%s' (expected nsca, stdout or kafka)", n.Transport)
	}
	return nil
}
