package config

import "time"

// Config represents the complete gridmon.yaml configuration file.
type Config struct {
	// CheckInterval is the pause between two poll cycles.
	CheckInterval time.Duration `yaml:"check_interval" mapstructure:"check_interval"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`

	// LogFile receives the daemon log. Empty or "-" means stderr.
	LogFile string `yaml:"log_file" mapstructure:"log_file"`

	// CommandRoot is the directory the source commands are run from.
	CommandRoot string `yaml:"command_root" mapstructure:"command_root"`

	Commands CommandsConfig `yaml:"commands" mapstructure:"commands"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`

	// ThresholdCacheTTL keeps the threshold table across cycles. Zero
	// refetches it every cycle.
	ThresholdCacheTTL time.Duration `yaml:"threshold_cache_ttl" mapstructure:"threshold_cache_ttl"`

	Icinga IcingaConfig `yaml:"icinga" mapstructure:"icinga"`
	Notify NotifyConfig `yaml:"notify" mapstructure:"notify"`

	// MetricsListen is the address for the Prometheus endpoint. Empty
	// disables it.
	MetricsListen string `yaml:"metrics_listen" mapstructure:"metrics_listen"`
}

// CommandsConfig names the scripts that produce the three inputs of a cycle.
type CommandsConfig struct {
	Catalog    string `yaml:"catalog" mapstructure:"catalog"`
	Thresholds string `yaml:"thresholds" mapstructure:"thresholds"`
	Sensors    string `yaml:"sensors" mapstructure:"sensors"`
}

// SourceConfig controls where the source commands run.
type SourceConfig struct {
	// SSHHost runs the commands on a scheduler head node instead of
	// locally. Can be hostname, user@hostname, or an SSH config alias.
	SSHHost string `yaml:"ssh_host" mapstructure:"ssh_host"`

	// Timeout bounds every source command.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// IcingaConfig holds the Icinga 2 API connection and host defaults.
type IcingaConfig struct {
	Server    string        `yaml:"server" mapstructure:"server"`
	Username  string        `yaml:"username" mapstructure:"username"`
	Password  string        `yaml:"password" mapstructure:"password"`
	VerifyTLS bool          `yaml:"verify_tls" mapstructure:"verify_tls"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// HostTemplates are applied to every host gridmon creates.
	HostTemplates []string `yaml:"host_templates" mapstructure:"host_templates"`

	// HostVars are static vars set on every host gridmon creates.
	HostVars map[string]string `yaml:"host_vars" mapstructure:"host_vars"`
}

// Transport names accepted by notify.transport.
const (
	TransportNSCA   = "nsca"
	TransportStdout = "stdout"
	TransportKafka  = "kafka"
)

// NotifyConfig selects and configures the passive-check transport.
type NotifyConfig struct {
	// Transport is one of nsca, stdout, kafka.
	Transport string `yaml:"transport" mapstructure:"transport"`

	NSCACommand  string `yaml:"nsca_command" mapstructure:"nsca_command"`
	NSCAConfig   string `yaml:"nsca_config" mapstructure:"nsca_config"`
	NSCADestHost string `yaml:"nsca_dest_host" mapstructure:"nsca_dest_host"`

	// MirrorFile gets a copy of every payload before it is sent.
	MirrorFile string `yaml:"mirror_file" mapstructure:"mirror_file"`

	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Kafka   KafkaConfig   `yaml:"kafka" mapstructure:"kafka"`
}

// KafkaConfig configures the kafka transport.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval: 120 * time.Second,
		LogLevel:      "info",
		LogFile:       "/var/log/gridmon.log",
		CommandRoot:   ".",
		Commands: CommandsConfig{
			Catalog:    "threshold_comparators.sh",
			Thresholds: "per-host-thresholds.yaml.sh",
			Sensors:    "qstat-explain.yaml.sh",
		},
		Source: SourceConfig{
			Timeout: 60 * time.Second,
		},
		Icinga: IcingaConfig{
			VerifyTLS:     true,
			Timeout:       10 * time.Second,
			HostTemplates: []string{"generic-host"},
			HostVars:      map[string]string{"sge_node": "1"},
		},
		Notify: NotifyConfig{
			Transport:   TransportNSCA,
			NSCACommand: "/usr/local/nagios/bin/send_nsca",
			NSCAConfig:  "/usr/local/nagios/etc/send_nsca.cfg",
			Timeout:     30 * time.Second,
			Kafka: KafkaConfig{
				Brokers: []string{},
				Topic:   "gridmon.checks",
			},
		},
	}
}
