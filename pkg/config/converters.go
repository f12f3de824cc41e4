package config

import (
	"time"

	"github.com/mimir-go/pkg/lock"
	"github.com/mimir-go/pkg/logger"
	"github.com/mimir-go/pkg/resilience"
	"github.com/mimir-go/pkg/telemetry"
)

// ToLoggerConfig converts LoggerConfig to logger.Config
func (c LoggerConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		AddCaller:  c.AddCaller,
		Stacktrace: c.Stacktrace,
	}
}

// ToTelemetryConfig converts TelemetryConfig to telemetry.Config
func (c TelemetryConfig) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:      c.Enabled,
		JaegerURL:    c.JaegerURL,
		ServiceName:  c.ServiceName,
		SamplingRate: c.SamplingRate,
	}
}

// ToCircuitBreakerConfig converts the breaker part of ResilienceConfig
func (c ResilienceConfig) ToCircuitBreakerConfig(name string) resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	if c.BreakerMaxRequests > 0 {
		cfg.MaxRequests = c.BreakerMaxRequests
	}
	if c.BreakerInterval > 0 {
		cfg.Interval = time.Duration(c.BreakerInterval) * time.Second
	}
	if c.BreakerTimeout > 0 {
		cfg.Timeout = time.Duration(c.BreakerTimeout) * time.Second
	}
	if c.BreakerFailureRatio > 0 {
		cfg.FailureRatio = c.BreakerFailureRatio
	}
	if c.BreakerMinRequests > 0 {
		cfg.MinRequests = c.BreakerMinRequests
	}
	return cfg
}

// ToRetryConfig converts the retry part of ResilienceConfig
func (c ResilienceConfig) ToRetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if c.RetryAttempts > 0 {
		cfg.MaxAttempts = c.RetryAttempts
	}
	if c.RetryInitialDelay > 0 {
		cfg.InitialDelay = time.Duration(c.RetryInitialDelay) * time.Millisecond
	}
	if c.RetryMaxDelay > 0 {
		cfg.MaxDelay = time.Duration(c.RetryMaxDelay) * time.Millisecond
	}
	return cfg
}

// ToLockOptions converts RedisConfig to lock.Options
func (c RedisConfig) ToLockOptions() *lock.Options {
	opts := lock.DefaultOptions()
	if c.LockTTL > 0 {
		opts.TTL = time.Duration(c.LockTTL) * time.Second
	}
	return opts
}
