package config

import (
	"bytes"
	"os"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"gopkg.in/yaml.v3"
)

const header = `# gridmon configuration
# Durations take a unit (2m, 30s); bare numbers are seconds.
# Any key can be overridden with GRIDMON_<SECTION>_<KEY>, e.g. GRIDMON_ICINGA_PASSWORD.
`

// Render returns cfg as a commented YAML document.
func Render(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't render config",
			"This is unexpected - please report it.")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't render config",
			"This is unexpected - please report it.")
	}
	return buf.Bytes(), nil
}

// Write renders cfg to path with owner-only permissions, since the file
// holds the Icinga password.
func Write(cfg *Config, path string) error {
	data, err := Render(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't write config to "+path,
			"Check the directory exists and is writable.")
	}
	return nil
}
