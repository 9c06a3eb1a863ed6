package env

import (
	"strings"
	"time"
)

// GetOrDefault retrieves an environment variable with a default value
func GetOrDefault(key, defaultValue string) string {
	if value, ok := Get(key); ok {
		return value
	}
	return defaultValue
}

// GetDuration parses a time.Duration ("15s", "2m"). A missing or unparsable
// value yields defaultValue and ok=false when the value was present but bad.
func GetDuration(key string, defaultValue time.Duration) (time.Duration, bool) {
	raw, present := Get(key)
	if !present {
		return defaultValue, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultValue, false
	}
	return d, true
}

// GetList splits a comma separated variable, trimming blanks.
func GetList(key string, defaultValue []string) []string {
	raw, ok := Get(key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
