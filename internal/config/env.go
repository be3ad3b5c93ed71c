package config

import (
	"os"
	"regexp"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
// Unset variables are left as written.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}

// expandAdapterEnvVars expands environment variables in every string setting
// of a, including the values of headers and base payload.
func expandAdapterEnvVars(a *AdapterSettings) {
	a.Database = expandEnvVars(a.Database)
	a.User = expandEnvVars(a.User)
	a.Password = expandEnvVars(a.Password)
	a.Host = expandEnvVars(a.Host)
	a.BaseURL = expandEnvVars(a.BaseURL)
	a.BasePath = expandEnvVars(a.BasePath)

	for k, v := range a.BaseHeaders {
		a.BaseHeaders[k] = expandEnvVars(v)
	}
	for k, v := range a.BasePayload {
		if s, ok := v.(string); ok {
			a.BasePayload[k] = expandEnvVars(s)
		}
	}
}
