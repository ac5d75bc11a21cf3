package config

import (
	"sync/atomic"
	"time"
)

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                string // connection string for the database (postgresql:// or sqlite://)
	NatsURL           string // url of the NATS server, empty disables publishing
	WaitForServices   string // duration to wait for other services to be ready
	LogLevel          string // sets the log level (zap log level values)
	SQLLogLevel       string // sets the log level for sql subsystem
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules, e.g. "info+:* debug+:processing.*"
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry, "stdout" prints to console
	WsAddr            string // listen addr for the websocket endpoint, empty disables it
	Recording         string // recording to replay
	FrameRate         int    // frames per second
	NoPacing          bool   // process recordings as fast as possible
	GraceWindow       string // time a vanished driver is retained
	SafeMode          bool   // relative-safe-mode: no best lap telemetry is persisted
	WsMinInterval     string // minimum time between two result messages per websocket client
)

// SafeModeKey is the config key watched for hot reload.
const SafeModeKey = "relative-safe-mode"

// Config holds the configuration values which are used by the application
type Config struct {
	FrameRate     int
	GraceWindow   time.Duration
	WsMinInterval time.Duration
	// toggled by config file changes while running
	SafeMode atomic.Bool
}

// ParseDuration returns the parsed duration or defaultVal for invalid input.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
