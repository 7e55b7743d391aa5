package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/freshness-monitor/backend/internal/api"
	"github.com/freshness-monitor/backend/internal/broadcast"
	"github.com/freshness-monitor/backend/internal/config"
	"github.com/freshness-monitor/backend/internal/evaluator"
	"github.com/freshness-monitor/backend/internal/ingest"
	"github.com/freshness-monitor/backend/internal/logging"
	"github.com/freshness-monitor/backend/internal/models"
	"github.com/freshness-monitor/backend/internal/monitor"
	"github.com/freshness-monitor/backend/internal/storage"
	"github.com/freshness-monitor/backend/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the configured ingestion transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the XML config file (default: next to the executable)")
	return cmd
}

func defaultConfigDir() string {
	exePath, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exePath)
}

func runServe(parent context.Context, configPath string) error {
	if configPath == "" {
		configPath = filepath.Join(defaultConfigDir(), config.DefaultFileName)
	}
	if err := config.LoadDotEnv(filepath.Join(filepath.Dir(configPath), ".env"), ".env"); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logging.New(cfg.Advanced.LogLevel, cfg.Advanced.LogFormat)
	if err != nil {
		log.WithError(err).Warn("falling back to info level")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	profiles := models.DefaultProfiles()
	if cfg.Evaluation.ThresholdsFile != "" {
		profiles, err = config.LoadThresholds(cfg.Evaluation.ThresholdsFile, profiles)
		if err != nil {
			return fmt.Errorf("failed to load thresholds: %w", err)
		}
		log.WithField("file", cfg.Evaluation.ThresholdsFile).Info("channel thresholds loaded")
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	hub := api.NewHub(cfg.Advanced.WebSocketMaxMessageSize, log)
	svc := monitor.NewService(evaluator.New(profiles, cfg.Policy()), store, log, hub)
	defer svc.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Redis.Enabled {
		sink, err := openRedis(ctx, cfg)
		if err != nil {
			log.WithError(err).Error("redis broadcast disabled")
		} else {
			defer sink.Close()
			svc.AddSink(sink)
		}
	}

	if cfg.Evaluation.WarmStart {
		n, err := svc.WarmStart(ctx, cfg.Evaluation.WarmStartReadings)
		if err != nil {
			log.WithError(err).Warn("warm start failed, starting with an empty baseline")
		} else {
			log.WithField("readings", n).Info("warm start complete")
		}
	}

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e, api.MiddlewareOptions{
		Log:            log,
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		ShowErrors:     log.IsLevelEnabled(logrus.DebugLevel),
		EnableCORS:     cfg.Server.EnableCORS,
		AllowOrigins:   cfg.Server.AllowOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
		Timeout:        time.Duration(cfg.Server.ReadTimeout) * time.Second,
	})
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Monitor: svc,
		Hub:     hub,
		Version: Version,
		Log:     log,
	}))
	if web.HasEmbeddedFiles() {
		if err := web.RegisterStaticRoutes(e); err != nil {
			log.WithError(err).Warn("failed to register dashboard routes")
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MQTT.Enabled {
		sub := ingest.NewMQTTSubscriber(ingest.MQTTOptions{
			Broker:    cfg.MQTT.Broker,
			Topic:     cfg.MQTT.Topic,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			QoS:       byte(cfg.MQTT.QoS),
			KeepAlive: uint16(cfg.MQTT.KeepAliveSeconds),
		}, svc, log)
		g.Go(func() error { return sub.Run(gctx) })
	}

	if cfg.AMQP.Enabled {
		consumer, err := ingest.DialAMQP(ingest.AMQPOptions{
			URL:        cfg.AMQP.URL,
			Exchange:   cfg.AMQP.Exchange,
			Queue:      cfg.AMQP.Queue,
			RoutingKey: cfg.AMQP.RoutingKey,
		}, svc, log)
		if err != nil {
			log.WithError(err).Error("amqp ingestion disabled")
		} else {
			defer consumer.Close()
			g.Go(func() error {
				if err := consumer.Run(gctx); err != nil {
					log.WithError(err).Error("amqp consumer stopped")
				}
				return nil
			})
		}
	}

	g.Go(func() error {
		printBanner(configPath, cfg)
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(cfg *config.AppConfig, log logrus.FieldLogger) (storage.Store, error) {
	if !cfg.Storage.EnablePersistence {
		return storage.NewMemoryStore(cfg.Storage.MemoryHistorySize), nil
	}
	store, err := storage.NewDuckStore(cfg.GetDatabasePath(), storage.DuckOptions{
		MemoryLimit:   cfg.Advanced.DuckDBMemoryLimit,
		Threads:       cfg.Advanced.DuckDBThreads,
		TempDirectory: cfg.Storage.TempDirectory,
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	return store, nil
}

func openRedis(ctx context.Context, cfg *config.AppConfig) (*broadcast.RedisSink, error) {
	opts := broadcast.RedisOptions{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		LatestKey: cfg.Redis.LatestKey,
		Channel:   cfg.Redis.Channel,
		TTL:       cfg.RedisTTL(),
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := broadcast.NewRedisClient(pingCtx, opts)
	if err != nil {
		return nil, err
	}
	return broadcast.NewRedisSink(client, opts), nil
}

func printBanner(configPath string, cfg *config.AppConfig) {
	storageMode := "memory"
	if cfg.Storage.EnablePersistence {
		storageMode = cfg.GetDatabasePath()
	}
	mqtt := "off"
	if cfg.MQTT.Enabled {
		mqtt = cfg.MQTT.Broker + " " + cfg.MQTT.Topic
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Freshness Monitor Server                        ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Storage:   %-46s║\n", storageMode)
	fmt.Printf("║  MQTT:      %-46s║\n", mqtt)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
