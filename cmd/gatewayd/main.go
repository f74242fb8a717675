// Package main implements the gatewayd binary: a field gateway that stores
// sensor and command records locally and synchronizes them to a remote
// PostgreSQL database whenever it is reachable.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"field-gateway/config"
	"field-gateway/internal/api"
	"field-gateway/internal/db"
	"field-gateway/internal/dispatch"
	"field-gateway/internal/hardware"
	"field-gateway/internal/ingest"
	"field-gateway/internal/mqttclient"
	"field-gateway/internal/remote"
	"field-gateway/internal/store"
	"field-gateway/internal/syncer"
)

// Options holds the command-line options.
type Options struct {
	ConfigPath string `short:"c" env:"GATEWAY_CONFIG" long:"config" description:"Path to the YAML configuration file" default:"./config/config.yaml"`
	LogLevel   string `short:"l" env:"GATEWAY_LOG_LEVEL" long:"log-level" description:"Log level: debug|info|warn|error (overrides config)"`
	Version    bool   `short:"v" long:"version" description:"Show version information"`
	Help       bool
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ParseCLI parses command-line arguments, without the program name.
func ParseCLI(args []string) (opts *Options, err error) {
	opts = new(Options)
	parser := flags.NewParser(opts, flags.HelpFlag)
	rest, err := parser.ParseArgs(args)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			opts.Help = true
		}
		if !flags.WroteHelp(err) {
			parser.WriteHelp(os.Stdout)
		}
		return opts, err
	}
	if len(rest) > 0 {
		return opts, fmt.Errorf("unknown argument(s): %v", rest)
	}
	return
}

// ShowVersion prints version information.
func ShowVersion() {
	fmt.Printf("gatewayd version %s\n", version)
	if commit != "none" && commit != "" {
		fmt.Printf("commit: %s\n", commit)
	}
	if date != "unknown" && date != "" {
		fmt.Printf("built: %s\n", date)
	}
}

// SetupLogging configures the package-level logrus logger.
func SetupLogging(logLevel string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	logrus.SetOutput(os.Stdout)

	logrus.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"pid":     os.Getpid(),
	}).Info("gatewayd logging initialized")
	return nil
}

// OpenDevice returns the configured hardware device, or nil when hardware is
// disabled.
func OpenDevice(cfg *config.HardwareConfig) (hardware.Device, error) {
	switch cfg.Driver {
	case "none", "":
		return nil, nil
	case "sim":
		return hardware.NewSimDevice(), nil
	case "serial":
		return hardware.OpenSerial(cfg)
	default:
		return nil, fmt.Errorf("unsupported hardware driver: %q", cfg.Driver)
	}
}

func main() {
	opts, err := ParseCLI(os.Args[1:])
	if err != nil {
		if opts != nil && opts.Help {
			os.Exit(0)
		}
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	if opts.Version {
		ShowVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Printf("failed to load configuration from %s: %v\n", opts.ConfigPath, err)
		os.Exit(1)
	}
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if err := SetupLogging(level); err != nil {
		logrus.WithError(err).Fatal("Failed to setup logging")
	}
	logrus.WithField("path", opts.ConfigPath).Info("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 15*time.Second)
	gormDB, err := db.Init(initCtx, &cfg.Local)
	initCancel()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid local store configuration")
	}
	localStore := store.NewGormStore(gormDB)
	logrus.WithField("driver", cfg.Local.Driver).Info("Local store initialized")

	if cfg.Remote.DSN == "" {
		logrus.Warn("remote.dsn is empty; falling back to libpq environment variables")
	}
	pool, err := remote.NewPool(ctx, cfg.Remote.DSN, time.Duration(cfg.Remote.ConnectTimeoutSeconds)*time.Second)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid remote store configuration")
	}
	remoteClient := remote.NewPgClient(pool, cfg.Remote.InsertTimeout)
	defer remoteClient.Close()

	engine := syncer.NewEngine(localStore, remoteClient, cfg.Sync.Interval, cfg.Sync.RetryInterval)
	ingestor := ingest.New(localStore, engine, cfg.Sync.PriorityTypes)

	var wg sync.WaitGroup
	spawn := func(run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}

	spawn(engine.Run)

	device, err := OpenDevice(&cfg.Hardware)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open hardware")
	}
	if device != nil {
		defer device.Close()
		poller := hardware.NewPoller(device, ingestor, cfg.Hardware.DeviceName, cfg.Hardware.PollInterval, cfg.Hardware.SampleInterval).
			WithFeedback(cfg.Hardware.BeepOnPress, cfg.Hardware.LCDTemperature)
		spawn(poller.Run)
	}

	var display api.DisplaySource
	if cfg.Dispatch.Enabled {
		if device == nil {
			logrus.Warn("Command dispatch enabled without hardware; commands will not be actuated")
		} else {
			workers := dispatch.NewWorkerPool(1, device)
			dispatcher := dispatch.NewDispatcher(localStore, workers, cfg.Dispatch.Interval, cfg.Dispatch.RecentLimit, cfg.Dispatch.MaxAge)
			display = dispatcher.Display()
			spawn(dispatcher.Run)
		}
	}

	if cfg.MQTT.Enabled {
		mc := mqttclient.New(mqttclient.Options{BrokerURL: cfg.MQTT.Broker, ClientID: mqttclient.ClientID(cfg.MQTT.ClientID)})
		if err := mqttclient.NewSubscriber(mc, ingestor, cfg.MQTT.Topic, cfg.MQTT.QoS).Start(); err != nil {
			logrus.WithError(err).Error("Failed to register MQTT subscription")
		}
		if err := mc.Connect(5 * time.Second); err != nil {
			logrus.WithError(err).Error("MQTT connect failed, continuing without MQTT ingestion")
		}
		defer mc.Close()
	}

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(ingestor, localStore, engine, display, cfg.Server.StatusSample)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server),
	}

	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("HTTP server ListenAndServe")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logrus.Info("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP server Shutdown")
	}

	cancel()
	wg.Wait()
	logrus.Info("Gateway gracefully stopped")
}
