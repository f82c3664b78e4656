// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/guardian/internal/log"
)

// parseEnv reads key with parse. Unset or empty variables keep def; values that
// fail to parse keep def and log a warning.
func parseEnv[T any](key string, def T, parse func(string) (T, error)) T {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	parsed, err := parse(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Err(err).
			Msg("invalid value in environment variable, using default")
		return def
	}
	if isSensitive(key) {
		logger.Debug().Str("key", key).Bool("sensitive", true).Str("source", "environment").Msg("using environment variable")
	} else {
		logger.Debug().Str("key", key).Str("value", v).Str("source", "environment").Msg("using environment variable")
	}
	return parsed
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password")
}

func ParseString(key, def string) string {
	return parseEnv(key, def, func(s string) (string, error) { return s, nil })
}

func ParseInt(key string, def int) int {
	return parseEnv(key, def, strconv.Atoi)
}

func ParseFloat(key string, def float64) float64 {
	return parseEnv(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// ParseDuration accepts Go duration syntax such as "5s".
func ParseDuration(key string, def time.Duration) time.Duration {
	return parseEnv(key, def, time.ParseDuration)
}

// ParseBool accepts true/false, 1/0 and yes/no.
func ParseBool(key string, def bool) bool {
	return parseEnv(key, def, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "yes":
			return true, nil
		case "no":
			return false, nil
		}
		return strconv.ParseBool(s)
	})
}
