package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/absmach/fedagg"
	"github.com/absmach/fedagg/coordinator"
	"github.com/absmach/fedagg/coordinator/api"
	"github.com/absmach/fedagg/coordinator/middleware"
	"github.com/absmach/fedagg/pkg/fl"
	"github.com/absmach/fedagg/pkg/mqtt"
	"github.com/absmach/fedagg/pkg/storage"
	"github.com/absmach/fedagg/pkg/tracing"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "coordinator"
	defHTTPPort   = "7070"
	envPrefixHTTP = "FEDAGG_HTTP_"
)

type envConfig struct {
	LogLevel    string        `env:"FEDAGG_LOG_LEVEL"    envDefault:"info"`
	InstanceID  string        `env:"FEDAGG_INSTANCE_ID"`
	ConfigFile  string        `env:"FEDAGG_CONFIG_FILE"`
	DataDir     string        `env:"FEDAGG_DATA_DIR"`
	MQTTAddress string        `env:"FEDAGG_MQTT_ADDRESS"`
	MQTTQoS     uint8         `env:"FEDAGG_MQTT_QOS"     envDefault:"2"`
	MQTTTimeout time.Duration `env:"FEDAGG_MQTT_TIMEOUT" envDefault:"30s"`
	ClientID    string        `env:"FEDAGG_CLIENT_ID"`
	ClientKey   string        `env:"FEDAGG_CLIENT_KEY"`
	DomainID    string        `env:"FEDAGG_DOMAIN_ID"`
	ChannelID   string        `env:"FEDAGG_CHANNEL_ID"`
	OTELURL     url.URL       `env:"FEDAGG_OTEL_URL"`
	TraceRatio  float64       `env:"FEDAGG_TRACE_RATIO"  envDefault:"0"`
	RoundCheck  time.Duration `env:"FEDAGG_ROUND_CHECK_INTERVAL" envDefault:"10s"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	fileCfg := &fedagg.Config{}
	if cfg.ConfigFile != "" {
		c, err := fedagg.LoadConfig(cfg.ConfigFile)
		if err != nil {
			logger.Error("failed to load config file", slog.String("path", cfg.ConfigFile), slog.String("error", err.Error()))

			return
		}
		fileCfg = c
	}
	creds := mergeCredentials(cfg, fileCfg.Coordinator)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := tracing.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	var persistent *fl.PersistentStorage
	if cfg.DataDir != "" {
		ps, err := fl.NewPersistentStorage(filepath.Join(cfg.DataDir, "rounds"), filepath.Join(cfg.DataDir, "models"))
		if err != nil {
			logger.Error("failed to initialize persistent storage", slog.String("error", err.Error()))

			return
		}
		persistent = ps
	}

	var pubsub mqtt.PubSub
	if cfg.MQTTAddress != "" {
		mqttID := creds.ClientID
		if mqttID == "" {
			mqttID = fmt.Sprintf("%s-%s", svcName, cfg.InstanceID)
		}
		statusTopic := ""
		if base := creds.BaseTopic(); base != "" {
			statusTopic = base + "/fl/coordinator/status"
		}
		ps, err := mqtt.NewPubSub(mqtt.Config{
			Address:     cfg.MQTTAddress,
			ClientID:    mqttID,
			Username:    creds.ClientID,
			Password:    creds.ClientKey,
			QoS:         cfg.MQTTQoS,
			Timeout:     cfg.MQTTTimeout,
			StatusTopic: statusTopic,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := ps.Disconnect(context.Background()); err != nil {
				logger.Warn("failed to disconnect mqtt pubsub", slog.String("error", err.Error()))
			}
		}()
		pubsub = ps
	}

	svc := coordinator.NewService(
		storage.NewInMemoryStorage[coordinator.Experiment](),
		storage.NewInMemoryStorage[fl.Model](),
		persistent,
		pubsub,
		creds.BaseTopic(),
		logger,
	)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	if err := svc.Subscribe(ctx); err != nil {
		logger.Error("failed to subscribe to coordinator channel", slog.String("error", err.Error()))

		return
	}

	for _, ec := range fileCfg.Experiments {
		if _, err := svc.CreateExperiment(ctx, ec); err != nil {
			logger.Error("failed to create configured experiment", slog.String("name", ec.Name), slog.String("error", err.Error()))

			return
		}
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	rs := coordinator.NewRoundScheduler(svc, logger, cfg.RoundCheck)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return rs.Start(ctx)
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
	rs.Stop()
}

// mergeCredentials fills the coordinator credentials missing from the
// environment with the ones from the config file.
func mergeCredentials(cfg envConfig, file fedagg.CoordinatorConfig) fedagg.CoordinatorConfig {
	creds := fedagg.CoordinatorConfig{
		ClientID:  cfg.ClientID,
		ClientKey: cfg.ClientKey,
		DomainID:  cfg.DomainID,
		ChannelID: cfg.ChannelID,
	}
	if creds.ClientID == "" {
		creds.ClientID = file.ClientID
	}
	if creds.ClientKey == "" {
		creds.ClientKey = file.ClientKey
	}
	if creds.DomainID == "" {
		creds.DomainID = file.DomainID
	}
	if creds.ChannelID == "" {
		creds.ChannelID = file.ChannelID
	}

	return creds
}
