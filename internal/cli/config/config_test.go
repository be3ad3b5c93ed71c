package config

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringP("file", "f", "", "pipeline document")
	flags.BoolP("verbose", "v", false, "verbose")
	flags.String("log-format", "", "log format")
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultFile, cfg.File)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.False(t, cfg.Verbose)
}

func TestLoad_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		args     []string
		wantFile string
		wantFmt  string
		verbose  bool
	}{
		{
			name:     "env over defaults",
			env:      map[string]string{"QUERYPIPE_FILE": "env.yaml", "QUERYPIPE_LOG_FORMAT": "JSON"},
			wantFile: "env.yaml",
			wantFmt:  LogFormatJSON,
		},
		{
			name:     "flags over env",
			env:      map[string]string{"QUERYPIPE_FILE": "env.yaml"},
			args:     []string{"--file", "flag.yaml", "-v"},
			wantFile: "flag.yaml",
			wantFmt:  LogFormatText,
			verbose:  true,
		},
		{
			name:     "unset flag keeps env",
			env:      map[string]string{"QUERYPIPE_VERBOSE": "true"},
			args:     []string{"--log-format", "json"},
			wantFile: DefaultFile,
			wantFmt:  LogFormatJSON,
			verbose:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			flags := newFlags()
			require.NoError(t, flags.Parse(tt.args))

			cfg, err := Load(flags)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFile, cfg.File)
			assert.Equal(t, tt.wantFmt, cfg.LogFormat)
			assert.Equal(t, tt.verbose, cfg.Verbose)
		})
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--log-format", "xml"}))

	_, err := Load(flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, (&Config{LogFormat: LogFormatText}).Validate())
	assert.NoError(t, (&Config{File: "a.yaml", LogFormat: LogFormatJSON}).Validate())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	NewLogger(&buf, &Config{LogFormat: LogFormatText}).Debug("hidden")
	assert.Empty(t, buf.String(), "debug is off unless verbose")

	NewLogger(&buf, &Config{LogFormat: LogFormatJSON, Verbose: true}).Debug("shown", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, DefaultFile, GetConfig(ctx).File)
	assert.NotNil(t, GetLogger(ctx))

	cfg := &Config{File: "x.yaml", LogFormat: LogFormatText}
	logger := NewLogger(&bytes.Buffer{}, cfg)
	ctx = NewContext(ctx, cfg, logger)

	assert.Same(t, cfg, GetConfig(ctx))
	assert.Same(t, logger, GetLogger(ctx))
}
