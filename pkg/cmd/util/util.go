package util

import (
	"os"
	"sync"
	"time"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/config"
	"github.com/rehud/rehud-delta/pkg/utils"
)

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger creates the application and sql logger from the config values
// and installs the application logger as default.
func SetupLogger() (logger, sqlLogger *log.Logger) {
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
		sqlLogger = log.New(
			os.Stderr,
			parseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
		sqlLogger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	if filtered, err := log.WithFilter(logger, config.LogFilter); err == nil {
		logger = filtered
	} else {
		logger.Warn("invalid log filter, ignoring", log.ErrorField(err))
	}
	log.ResetDefault(logger)
	return logger, sqlLogger.Named("sql")
}

// WaitForRequiredServices blocks until the configured database and NATS
// server accept tcp connections. The process exits when they don't.
func WaitForRequiredServices() {
	timeout := config.ParseDuration(config.WaitForServices, 60*time.Second)

	wg := sync.WaitGroup{}
	checkTCP := func(addr string) {
		defer wg.Done()
		if err := utils.WaitForTCP(addr, timeout); err != nil {
			log.Fatal("required services not ready", log.ErrorField(err))
		}
	}

	if postgresAddr := utils.ExtractFromDBURL(config.DB); postgresAddr != "" {
		wg.Add(1)
		go checkTCP(postgresAddr)
	}
	if natsAddr := utils.ExtractFromNatsURL(config.NatsURL); natsAddr != "" {
		wg.Add(1)
		go checkTCP(natsAddr)
	}
	log.Debug("Waiting for connection checks to return")
	wg.Wait()
	log.Debug("Required services are available")
}
