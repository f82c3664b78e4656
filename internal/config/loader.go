// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownConfigField classifies strict parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader resolves an AppConfig from defaults, an optional YAML file and the
// environment.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys lists every environment key the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Load applies defaults, the strict file, then the environment, and validates
// the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file over cfg. Unknown keys and multiple
// documents are rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the config path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) consume(key string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.CountdownWindow = ParseDuration(l.consume("GUARDIAN_COUNTDOWN_WINDOW"), cfg.CountdownWindow)
	cfg.LocationTimeout = ParseDuration(l.consume("GUARDIAN_LOCATION_TIMEOUT"), cfg.LocationTimeout)
	cfg.SendTimeout = ParseDuration(l.consume("GUARDIAN_SEND_TIMEOUT"), cfg.SendTimeout)
	cfg.AlertText = ParseString(l.consume("GUARDIAN_ALERT_TEXT"), cfg.AlertText)
	cfg.RetainSessions = ParseInt(l.consume("GUARDIAN_RETAIN_SESSIONS"), cfg.RetainSessions)
	cfg.DataDir = ParseString(l.consume("GUARDIAN_DATA"), cfg.DataDir)
	cfg.LogLevel = ParseString(l.consume("LOG_LEVEL"), cfg.LogLevel)

	cfg.EventLog.Backend = ParseString(l.consume("GUARDIAN_EVENTLOG_BACKEND"), cfg.EventLog.Backend)
	cfg.EventLog.Path = ParseString(l.consume("GUARDIAN_EVENTLOG_PATH"), cfg.EventLog.Path)
	cfg.EventLog.RedisAddr = ParseString(l.consume("GUARDIAN_REDIS_ADDR"), cfg.EventLog.RedisAddr)
	cfg.EventLog.RedisPassword = ParseString(l.consume("GUARDIAN_REDIS_PASSWORD"), cfg.EventLog.RedisPassword)

	cfg.Contacts.File = ParseString(l.consume("GUARDIAN_CONTACTS_FILE"), cfg.Contacts.File)

	cfg.Transport.Mode = ParseString(l.consume("GUARDIAN_TRANSPORT_MODE"), cfg.Transport.Mode)
	cfg.Transport.GatewayURL = ParseString(l.consume("GUARDIAN_GATEWAY_URL"), cfg.Transport.GatewayURL)
	cfg.Transport.Token = ParseString(l.consume("GUARDIAN_GATEWAY_TOKEN"), cfg.Transport.Token)

	cfg.API.Listen = ParseString(l.consume("GUARDIAN_LISTEN"), cfg.API.Listen)
	cfg.API.RateLimit = ParseInt(l.consume("GUARDIAN_API_RATE_LIMIT"), cfg.API.RateLimit)

	cfg.Telemetry.Enabled = ParseBool(l.consume("GUARDIAN_TELEMETRY_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(l.consume("GUARDIAN_TELEMETRY_EXPORTER"), cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(l.consume("GUARDIAN_TELEMETRY_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(l.consume("GUARDIAN_TELEMETRY_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)
}
