package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pgx-contrib/pgxtrace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/rehud/rehud-delta/log"
	cmdutil "github.com/rehud/rehud-delta/pkg/cmd/util"
	"github.com/rehud/rehud-delta/pkg/config"
	"github.com/rehud/rehud-delta/pkg/db/postgres"
	"github.com/rehud/rehud-delta/pkg/endpoints/ws"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/processing/fleet"
	natsproxy "github.com/rehud/rehud-delta/pkg/proxy/nats"
	"github.com/rehud/rehud-delta/pkg/source"
	"github.com/rehud/rehud-delta/pkg/storage"
	"github.com/rehud/rehud-delta/pkg/storage/factory"
)

var appConfig *config.Config // holds processed config values

//nolint:funlen // by design
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "processes a recording and publishes the computed deltas",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if config.Recording == "" {
				return fmt.Errorf("--recording is required")
			}
			appConfig = &config.Config{
				FrameRate:     config.FrameRate,
				GraceWindow:   config.ParseDuration(config.GraceWindow, fleet.DefaultGraceWindow),
				WsMinInterval: config.ParseDuration(config.WsMinInterval, 0),
			}
			appConfig.SafeMode.Store(config.SafeMode)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return startRun(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&config.Recording,
		"recording",
		"r",
		"",
		"recording file to process")
	cmd.Flags().IntVar(&config.FrameRate,
		"frame-rate",
		source.DefaultFrameRate,
		"frames per second")
	cmd.Flags().BoolVar(&config.NoPacing,
		"no-pacing",
		false,
		"process the recording as fast as possible")
	cmd.Flags().StringVar(&config.GraceWindow,
		"grace-window",
		fleet.DefaultGraceWindow.String(),
		"drivers leaving the session are restored within this duration")
	cmd.Flags().BoolVar(&config.SafeMode,
		config.SafeModeKey,
		false,
		"don't persist best lap telemetry (can be changed in the config file while running)")
	cmd.Flags().StringVar(&config.WsAddr,
		"ws-addr",
		"",
		"listen addr for the websocket endpoint (empty: disabled)")
	cmd.Flags().StringVar(&config.WsMinInterval,
		"ws-min-interval",
		"0s",
		"minimum time between two result messages per websocket client")
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"info",
		"controls the log level for sql methods")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"text",
		"controls the log output format (text, json)")
	cmd.Flags().StringVar(&config.LogFilter,
		"log-filter",
		"",
		"filter rules per logger name, e.g. \"info+:* debug+:processing.*\"")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data (stdout prints to console)")
	return cmd
}

//nolint:funlen,cyclop // by design
func startRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, sqlLogger := cmdutil.SetupLogger()
	cmdutil.WaitForRequiredServices()

	pgTracer := pgxtrace.CompositeQueryTracer{
		postgres.NewMyTracer(sqlLogger, log.DebugLevel),
	}
	if config.EnableTelemetry {
		logger.Info("Enabling telemetry")
		if telemetry, err := config.SetupTelemetry(ctx); err == nil {
			defer telemetry.Shutdown()
			pgTracer = append(pgTracer, postgres.NewOtlpTracer())
		} else {
			logger.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		if err := otlpruntime.Start(
			otlpruntime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
			logger.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	var store storage.LapStore
	if config.DB != "" {
		var err error
		store, err = factory.Open(ctx, config.DB,
			factory.WithMigration(),
			factory.WithPoolOptions(postgres.WithTracer(pgTracer)))
		if err != nil {
			return err
		}
		defer store.Close()
	}

	file, err := os.Open(config.Recording)
	if err != nil {
		return err
	}
	defer file.Close()
	reader, err := source.NewRecordingReader(file)
	if err != nil {
		return err
	}
	logger.Info("Processing recording", log.String("recording", reader.Header().String()))

	f := fleet.New(
		fleet.WithGraceWindow(appConfig.GraceWindow),
		fleet.WithSafeMode(appConfig.SafeMode.Load()))
	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(safeModeReloader(f, viper.GetViper()))
		viper.WatchConfig()
	}

	p := newPipeline(f, store)
	if config.NatsURL != "" {
		if err := attachNats(ctx, p); err != nil {
			return err
		}
	}

	wsCtx, wsCancel := context.WithCancel(ctx)
	defer wsCancel()
	if config.WsAddr != "" {
		srv := ws.NewServer(p.results, p.laps, ws.WithMinInterval(appConfig.WsMinInterval))
		go func() {
			if err := srv.Serve(wsCtx, config.WsAddr); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error("websocket endpoint stopped", log.ErrorField(err))
			}
		}()
	}

	opts := []source.PollerOption{source.WithFrameRate(appConfig.FrameRate)}
	if config.NoPacing {
		opts = append(opts, source.WithoutPacing())
	}
	return p.run(ctx, reader, opts...)
}

func attachNats(ctx context.Context, p *pipeline) error {
	nc, err := nats.Connect(config.NatsURL, nats.Name("rdelta"))
	if err != nil {
		return fmt.Errorf("could not connect to nats: %w", err)
	}
	pubOpts := []natsproxy.Option{}
	if kv, err := natsproxy.SetupKeyValue(ctx, nc); err == nil {
		pubOpts = append(pubOpts, natsproxy.WithKeyValue(kv))
	} else {
		log.Warn("jetstream not available, run summaries disabled", log.ErrorField(err))
	}
	pub := natsproxy.NewPublisher(nc, pubOpts...)
	p.attach(func(results <-chan *model.FrameResult, laps <-chan *model.LapEvent) {
		defer nc.Close()
		pub.Run(context.Background(), results, laps)
		if err := nc.Flush(); err != nil {
			log.Warn("nats flush failed", log.ErrorField(err))
		}
	})
	return nil
}
