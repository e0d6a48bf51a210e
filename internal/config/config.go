// Package config provides environment helpers for the finbot commands.
// Command-line flags override everything read here.
package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults used when the environment is silent.
const (
	DefaultHTTPAddr = ":8080"
	DefaultGRPCAddr = ":9090"
	DefaultPreset   = "default"
)

// Env returns the value of key, or def when unset or empty.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvBool parses key as a bool, falling back to def when unset or invalid.
func EnvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

// EnvDuration parses key as a time.Duration ("250ms"), falling back to def.
func EnvDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return d
}

// HTTPAddr is the REST and websocket listen address (FINBOT_HTTP_ADDR).
func HTTPAddr() string {
	return Env("FINBOT_HTTP_ADDR", DefaultHTTPAddr)
}

// GRPCAddr is the gRPC health listen address (FINBOT_GRPC_ADDR).
// "off" disables the health server.
func GRPCAddr() string {
	return Env("FINBOT_GRPC_ADDR", DefaultGRPCAddr)
}

// ActuatorURL is the servo bridge address (FINBOT_ACTUATOR_URL): ws:// or
// wss:// for the websocket link, http:// or https:// for the REST sink.
// Empty means commands are discarded.
func ActuatorURL() string {
	return os.Getenv("FINBOT_ACTUATOR_URL")
}

// Preset names the built-in pilot configuration (FINBOT_PRESET).
func Preset() string {
	return Env("FINBOT_PRESET", DefaultPreset)
}

// ConfigFile is an optional YAML pilot configuration (FINBOT_CONFIG).
func ConfigFile() string {
	return os.Getenv("FINBOT_CONFIG")
}

// RecordDir is where telemetry recordings go (FINBOT_RECORD_DIR). Empty
// disables recording.
func RecordDir() string {
	return os.Getenv("FINBOT_RECORD_DIR")
}

// LogLevel is the slog level name (LOG_LEVEL).
func LogLevel() string {
	return Env("LOG_LEVEL", "info")
}

// Production reports whether GO_ENV is "production".
func Production() bool {
	return os.Getenv("GO_ENV") == "production"
}
