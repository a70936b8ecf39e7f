package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func getEnv(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultVal
}

func getEnvLower(key, defaultVal string) string {
	return strings.ToLower(strings.TrimSpace(getEnv(key, defaultVal)))
}

// parsedEnv returns parse(value) for a set variable, or defaultVal when the
// variable is unset or does not parse.
func parsedEnv[T any](key string, defaultVal T, parse func(string) (T, error)) T {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	v, err := parse(strings.TrimSpace(value))
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvAsInt(key string, defaultVal int) int {
	return parsedEnv(key, defaultVal, strconv.Atoi)
}

func getEnvAsBool(key string, defaultVal bool) bool {
	return parsedEnv(key, defaultVal, strconv.ParseBool)
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	return parsedEnv(key, defaultVal, time.ParseDuration)
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	return parsedEnv(key, defaultVal, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// getEnvAsStringSlice splits a comma-separated list, dropping blanks. An
// all-blank value falls back to defaults.
func getEnvAsStringSlice(key string, defaults []string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}
