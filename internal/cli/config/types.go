// Package config holds the settings of the querypipe command line: which
// pipeline document to use and how to log. Settings are layered with koanf:
// defaults, then QUERYPIPE_* environment variables, then flags.
package config

// Default values for CLI settings.
const (
	DefaultFile      = "querypipe.yaml"
	DefaultLogFormat = LogFormatText
)

// Log formats accepted by --log-format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// EnvPrefix is the prefix of environment variables read as settings.
const EnvPrefix = "QUERYPIPE_"

// Config holds all CLI configuration options.
type Config struct {
	File      string `koanf:"file"`
	Verbose   bool   `koanf:"verbose"`
	LogFormat string `koanf:"log_format"`
}
