// file: config/show.go

package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

const redacted = "[redacted]"

// Redacted returns a copy with every secret value masked
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&c.Secrets)
	mask(&c.GitHub.Token)
	mask(&c.NATS.Password)
	mask(&c.NATS.Token)
	return c
}

// WriteYAML renders the redacted configuration in the same shape a config
// file uses, so the output can be saved and passed back with --config.
func (c *Config) WriteYAML(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(c.Redacted()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return encoder.Close()
}
