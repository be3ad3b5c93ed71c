package config

import "fmt"

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.File == "" {
		return fmt.Errorf("no pipeline document given: use --file or %sFILE", EnvPrefix)
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid log format %q: expected %s or %s", c.LogFormat, LogFormatText, LogFormatJSON)
	}
	return nil
}
