// NovaCloud Core - IoT Device Ingestion & Rule Evaluation Engine
//
// This is the main entry point for the NovaCloud Core application.
// NovaCloud Core terminates device connections over TCP and MQTT,
// normalizes telemetry into SQLite, mirrors numeric readings to
// InfluxDB, and evaluates automation strategies against every stored
// reading.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/Miraitowa-la/novacloud-core/migrations"

	"github.com/Miraitowa-la/novacloud-core/internal/api"
	"github.com/Miraitowa-la/novacloud-core/internal/device"
	"github.com/Miraitowa-la/novacloud-core/internal/infrastructure/config"
	"github.com/Miraitowa-la/novacloud-core/internal/infrastructure/database"
	"github.com/Miraitowa-la/novacloud-core/internal/infrastructure/influxdb"
	"github.com/Miraitowa-la/novacloud-core/internal/infrastructure/logging"
	"github.com/Miraitowa-la/novacloud-core/internal/infrastructure/mqtt"
	"github.com/Miraitowa-la/novacloud-core/internal/mailer"
	"github.com/Miraitowa-la/novacloud-core/internal/mqttbridge"
	"github.com/Miraitowa-la/novacloud-core/internal/strategy"
	"github.com/Miraitowa-la/novacloud-core/internal/tcpserver"
	"github.com/Miraitowa-la/novacloud-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting NovaCloud Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log)

	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.DeviceCount())

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional telemetry mirror)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		influxClient = nil
		log.Info("InfluxDB mirror disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Telemetry normalizer: the shared ingestion path for both transports
	telemetryRepo := telemetry.NewSQLiteRepository(db.DB)
	normalizer := telemetry.NewNormalizer(db.DB, deviceRepo, registry, telemetryRepo)
	normalizer.SetLogger(log)
	if influxClient != nil {
		normalizer.SetMirror(influxClient)
	}

	// Outbound mail for notify actions. An empty host is allowed; sends
	// fail with a logged error until SMTP is configured.
	mail := mailer.New(mailer.Options{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	// MQTT device bridge
	bridge := mqttbridge.NewBridge(mqttClient, mqttClient.Topics(), registry, normalizer, mqttClient.DefaultQoS())
	bridge.SetLogger(log)
	if startErr := bridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting MQTT bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping MQTT bridge")
		if stopErr := bridge.Stop(); stopErr != nil {
			log.Error("error stopping MQTT bridge", "error", stopErr)
		}
	}()
	log.Info("MQTT bridge started", "prefix", cfg.MQTT.TopicPrefix)

	// Strategy engine evaluates rules against every stored reading
	strategyRepo := strategy.NewSQLiteRepository(db.DB)
	engine := strategy.NewEngine(strategyRepo, registry, mail, bridge)
	engine.SetLogger(log)
	if cfg.Webhook.Timeout > 0 {
		engine.SetHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Webhook.Timeout) * time.Second,
		})
	}
	normalizer.SetSink(engine)

	// API server
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WS,
		Logger:     log,
		Registry:   registry,
		Devices:    deviceRepo,
		Telemetry:  telemetryRepo,
		Strategies: strategyRepo,
		Commands:   bridge,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Live event fan-out: ingestion and rule engine events stream to
	// WebSocket subscribers through the hub.
	hub := apiServer.Hub()
	normalizer.SetBroadcaster(hub)
	engine.SetBroadcaster(hub)

	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// TCP device server
	tcpServer := tcpserver.NewServer(tcpserver.Options{
		Addr:           fmt.Sprintf("%s:%d", cfg.TCP.Host, cfg.TCP.Port),
		FrameDelimiter: cfg.TCP.FrameDelimiter,
		MaxFrameSize:   cfg.TCP.MaxMessageSize,
		IdleTimeout:    time.Duration(cfg.TCP.IdleTimeout) * time.Second,
	}, registry, normalizer, log)
	if startErr := tcpServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting TCP server: %w", startErr)
	}
	defer func() {
		log.Info("stopping TCP server")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if stopErr := tcpServer.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping TCP server", "error", stopErr)
		}
	}()
	log.Info("TCP server started", "address", tcpServer.Addr())

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. TCP server
	// 2. API server
	// 3. MQTT bridge
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("NovaCloud Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NOVACLOUD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NOVACLOUD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
