// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"github.com/ManuGH/guardian/internal/validate"
)

// Validate reports every invalid field at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.PositiveDuration("countdownWindow", cfg.CountdownWindow)
	v.PositiveDuration("locationTimeout", cfg.LocationTimeout)
	v.PositiveDuration("sendTimeout", cfg.SendTimeout)
	v.NotEmpty("alertText", cfg.AlertText)
	v.Positive("retainSessions", cfg.RetainSessions)
	v.NotEmpty("dataDir", cfg.DataDir)
	v.OneOf("logLevel", cfg.LogLevel, []string{"trace", "debug", "info", "warn", "error"})

	v.OneOf("eventLog.backend", cfg.EventLog.Backend, []string{"sqlite", "badger", "memory"})
	if cfg.EventLog.RedisAddr != "" {
		v.ListenAddr("eventLog.redisAddr", cfg.EventLog.RedisAddr)
		v.NotEmpty("eventLog.redisStream", cfg.EventLog.RedisStream)
		v.NonNegative("eventLog.redisDB", cfg.EventLog.RedisDB)
	}

	v.Together("location", cfg.Location.Latitude != nil, cfg.Location.Longitude != nil)
	if cfg.Location.HasStatic() {
		v.FloatRange("location.latitude", *cfg.Location.Latitude, -90, 90)
		v.FloatRange("location.longitude", *cfg.Location.Longitude, -180, 180)
	}
	v.NonNegativeDuration("location.maxAge", cfg.Location.MaxAge)

	v.OneOf("transport.mode", cfg.Transport.Mode, []string{"gateway", "log"})
	if cfg.Transport.Mode == "gateway" {
		v.URL("transport.gatewayURL", cfg.Transport.GatewayURL, []string{"http", "https"})
	}
	v.PositiveFloat("transport.ratePerSecond", cfg.Transport.RatePerSecond)
	v.Positive("transport.burst", cfg.Transport.Burst)
	v.Positive("transport.breakerThreshold", cfg.Transport.BreakerThreshold)
	v.PositiveDuration("transport.breakerReset", cfg.Transport.BreakerReset)

	v.ListenAddr("api.listen", cfg.API.Listen)
	v.Positive("api.rateLimit", cfg.API.RateLimit)
	v.PositiveDuration("api.shutdownTimeout", cfg.API.ShutdownTimeout)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http", "noop"})
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
