// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads guardian's settings with the precedence
// environment > YAML file > defaults.
package config

import (
	"fmt"
	"time"
)

// AppConfig is the resolved daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	CountdownWindow time.Duration `yaml:"countdownWindow"`
	LocationTimeout time.Duration `yaml:"locationTimeout"`
	SendTimeout     time.Duration `yaml:"sendTimeout"`
	AlertText       string        `yaml:"alertText"`
	RetainSessions  int           `yaml:"retainSessions"`
	DataDir         string        `yaml:"dataDir"`
	LogLevel        string        `yaml:"logLevel"`

	EventLog  EventLogConfig  `yaml:"eventLog"`
	Contacts  ContactsConfig  `yaml:"contacts"`
	Location  LocationConfig  `yaml:"location"`
	Transport TransportConfig `yaml:"transport"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type EventLogConfig struct {
	// Backend is sqlite, badger or memory.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	// RedisAddr enables a Redis stream mirror of every entry.
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	RedisStream   string `yaml:"redisStream"`
}

type ContactsConfig struct {
	// File is a YAML contacts file. Empty selects the sqlite contacts table.
	File string `yaml:"file"`
}

type LocationConfig struct {
	// Latitude and Longitude set a static fallback position when both are present.
	Latitude  *float64      `yaml:"latitude"`
	Longitude *float64      `yaml:"longitude"`
	MaxAge    time.Duration `yaml:"maxAge"`
}

// HasStatic reports whether a static fallback position is configured.
func (l LocationConfig) HasStatic() bool {
	return l.Latitude != nil && l.Longitude != nil
}

type TransportConfig struct {
	// Mode is gateway or log.
	Mode             string        `yaml:"mode"`
	GatewayURL       string        `yaml:"gatewayURL"`
	Token            string        `yaml:"token"`
	RatePerSecond    float64       `yaml:"ratePerSecond"`
	Burst            int           `yaml:"burst"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
	// RateLimit is requests per minute per client on /api/v1.
	RateLimit       int           `yaml:"rateLimit"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() AppConfig {
	return AppConfig{
		CountdownWindow: 3 * time.Second,
		LocationTimeout: 5 * time.Second,
		SendTimeout:     15 * time.Second,
		AlertText:       "EMERGENCY SOS ALERT! I need help!",
		RetainSessions:  32,
		DataDir:         "/tmp/guardian",
		LogLevel:        "info",
		EventLog: EventLogConfig{
			Backend:     "sqlite",
			RedisStream: "guardian:eventlog",
		},
		Location: LocationConfig{MaxAge: 10 * time.Minute},
		Transport: TransportConfig{
			Mode:             "log",
			RatePerSecond:    5,
			Burst:            10,
			BreakerThreshold: 3,
			BreakerReset:     30 * time.Second,
		},
		API: APIConfig{
			Listen:          ":8088",
			RateLimit:       120,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// String masks secrets so the config can be logged.
func (c AppConfig) String() string {
	masked := c
	masked.Transport.Token = maskSecret(c.Transport.Token)
	masked.EventLog.RedisPassword = maskSecret(c.EventLog.RedisPassword)
	type plain AppConfig
	return fmt.Sprintf("%+v", plain(masked))
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
