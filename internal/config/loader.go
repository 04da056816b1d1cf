package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "gridmon.yaml"
	// EnvPrefix is the prefix for environment overrides, e.g.
	// GRIDMON_ICINGA_PASSWORD.
	EnvPrefix = "GRIDMON"
)

// Load reads config from the specified path, falling back to ./gridmon.yaml.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigFileName
	}

	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found: "+path,
				"Run 'gridmon init' to create one, or point --config at an existing file.")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+path)
	}

	vars, err := rawHostVars(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid icinga.host_vars",
			"host_vars must be a map of var name to value")
	}
	if vars != nil {
		cfg.Icinga.HostVars = vars
	}

	cfg.CommandRoot = ExpandTilde(cfg.CommandRoot)
	cfg.LogFile = ExpandTilde(cfg.LogFile)
	cfg.Notify.MirrorFile = ExpandTilde(cfg.Notify.MirrorFile)
	cfg.Notify.NSCAConfig = ExpandTilde(cfg.Notify.NSCAConfig)

	return cfg, nil
}

// rawHostVars reads icinga.host_vars straight from the file. Viper
// lowercases map keys, and Icinga custom var names are case-sensitive.
// A file without host_vars gives nil.
func rawHostVars(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Icinga struct {
			HostVars map[string]interface{} `yaml:"host_vars"`
		} `yaml:"icinga"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Icinga.HostVars == nil {
		return nil, nil
	}
	vars := make(map[string]string, len(raw.Icinga.HostVars))
	for k, v := range raw.Icinga.HostVars {
		if v == nil {
			vars[k] = ""
			continue
		}
		vars[k] = fmt.Sprint(v)
	}
	return vars, nil
}

// setDefaults registers every key so environment overrides work for keys
// the file leaves out.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("check_interval", d.CheckInterval)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("command_root", d.CommandRoot)
	v.SetDefault("commands.catalog", d.Commands.Catalog)
	v.SetDefault("commands.thresholds", d.Commands.Thresholds)
	v.SetDefault("commands.sensors", d.Commands.Sensors)
	v.SetDefault("source.ssh_host", d.Source.SSHHost)
	v.SetDefault("source.timeout", d.Source.Timeout)
	v.SetDefault("threshold_cache_ttl", d.ThresholdCacheTTL)
	v.SetDefault("icinga.server", "")
	v.SetDefault("icinga.username", "")
	v.SetDefault("icinga.password", "")
	v.SetDefault("icinga.verify_tls", d.Icinga.VerifyTLS)
	v.SetDefault("icinga.timeout", d.Icinga.Timeout)
	v.SetDefault("icinga.host_templates", d.Icinga.HostTemplates)
	v.SetDefault("icinga.host_vars", d.Icinga.HostVars)
	v.SetDefault("notify.transport", d.Notify.Transport)
	v.SetDefault("notify.nsca_command", d.Notify.NSCACommand)
	v.SetDefault("notify.nsca_config", d.Notify.NSCAConfig)
	v.SetDefault("notify.nsca_dest_host", "")
	v.SetDefault("notify.mirror_file", "")
	v.SetDefault("notify.timeout", d.Notify.Timeout)
	v.SetDefault("notify.kafka.brokers", d.Notify.Kafka.Brokers)
	v.SetDefault("notify.kafka.topic", d.Notify.Kafka.Topic)
	v.SetDefault("metrics_listen", "")
}

// secondsToDurationHook lets bare integers stand for seconds, so
// "check_interval: 120" (or GRIDMON_CHECK_INTERVAL=120) means two minutes
// rather than 120ns.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != durationType {
			return data, nil
		}
		switch n := data.(type) {
		case int:
			return time.Duration(n) * time.Second, nil
		case int64:
			return time.Duration(n) * time.Second, nil
		case float64:
			return time.Duration(n * float64(time.Second)), nil
		case string:
			if secs, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				return time.Duration(secs) * time.Second, nil
			}
		}
		return data, nil
	}
}
