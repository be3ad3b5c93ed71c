package config

import "strings"

// InitialDataFormatMsg is the error message for a malformed initial data string.
const InitialDataFormatMsg = "initial data must be in format: key1=value1,key2=value2"

// ParseInitialData parses "key1=value1,key2=value2" into a context mapping.
// Keys and values are trimmed. An empty string yields an empty mapping.
func ParseInitialData(s string) (map[string]any, error) {
	data := make(map[string]any)
	if strings.TrimSpace(s) == "" {
		return data, nil
	}

	for _, pair := range strings.Split(s, ",") {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 {
			return nil, &ConfigurationError{Msg: InitialDataFormatMsg}
		}
		data[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return data, nil
}
