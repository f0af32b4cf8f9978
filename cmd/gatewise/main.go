// Gatewise Core - Parking Facility Device Gateway
//
// This is the main entry point for the Gatewise Core application.
// Gatewise is the device-integration layer of a parking management
// platform: it drives entry/exit barriers and licence plate recognition
// cameras across vendor protocols, keeps durable ledgers of every
// command and accepted capture, and fans events out to operator
// consoles over WebSocket and MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/gatewise/gatewise-core/migrations"

	"github.com/gatewise/gatewise-core/internal/api"
	"github.com/gatewise/gatewise-core/internal/barrier"
	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/infrastructure/config"
	"github.com/gatewise/gatewise-core/internal/infrastructure/database"
	"github.com/gatewise/gatewise-core/internal/infrastructure/logging"
	"github.com/gatewise/gatewise-core/internal/infrastructure/mqtt"
	"github.com/gatewise/gatewise-core/internal/infrastructure/telemetry"
	"github.com/gatewise/gatewise-core/internal/lpr"
	"github.com/gatewise/gatewise-core/internal/sched"
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
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit // linear startup wiring
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gatewise Core",
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
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

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
	registry := device.NewRegistry(deviceRepo, log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", len(registry.ListDevices()))

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influx *telemetry.Client
	if cfg.Telemetry.Enabled {
		influx, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)
	} else {
		log.Info("telemetry disabled")
	}

	// WebSocket hub, created before the managers so their callbacks can
	// broadcast through it.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	topics := mqtt.Topics{}
	clock := sched.NewReal()

	// Observer fan-out shared by both managers: connectivity transitions
	// go to the hub, the bus and telemetry; command and capture metrics
	// go to telemetry only.
	observer := &eventObserver{hub: hub, mqtt: mqttClient, influx: influx, topics: topics}

	// Hardware manager: barrier controllers + command ledger
	ledger := barrier.NewSQLiteLedger(db.DB)
	hardwareCfg := barrier.ManagerConfig{
		PollInterval: cfg.HardwarePollInterval(),
		Observer:     observer,
		OnState: func(deviceID string, laneID *string, state barrier.State) {
			payload := map[string]any{
				"device_id": deviceID,
				"lane_id":   laneID,
				"state":     state,
			}
			hub.Broadcast(api.ChannelBarrierState, payload)
			if mqttClient != nil {
				mqttClient.PublishJSON(topics.BarrierState(deviceID), payload, true)
			}
		},
	}
	hardware := barrier.NewManager(registry, ledger, clock, log, hardwareCfg)
	if initErr := hardware.Initialize(ctx); initErr != nil {
		return fmt.Errorf("initialising hardware manager: %w", initErr)
	}
	defer func() {
		log.Info("shutting down hardware manager")
		hardware.Shutdown()
	}()

	// LPR manager: camera controllers + plate event ledger
	events := lpr.NewSQLiteEventRepository(db.DB)
	lprCfg := lpr.ManagerConfig{
		SiteID:        cfg.Site.ID,
		QueueSize:     cfg.LPR.QueueSize,
		MinConfidence: cfg.LPR.MinConfidence,
		PollInterval:  cfg.LPRPollInterval(),
		Observer:      observer,
		OnCapture: func(event lpr.PlateEvent) {
			hub.Broadcast(api.ChannelCapture, event)
			if mqttClient != nil {
				mqttClient.PublishJSON(topics.Capture(event.DeviceID), event, false)
			}
		},
	}
	lprMgr := lpr.NewManager(registry, deviceRepo, events, db.DB, clock, log, lprCfg)
	if initErr := lprMgr.Initialize(ctx); initErr != nil {
		return fmt.Errorf("initialising LPR manager: %w", initErr)
	}
	defer func() {
		log.Info("shutting down LPR manager")
		lprMgr.Shutdown()
	}()

	// API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Registry:    registry,
		Hardware:    hardware,
		LPR:         lprMgr,
		Ledger:      ledger,
		Events:      events,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (stops accepting commands)
	// 2. LPR manager (drains the capture queue)
	// 3. Hardware manager
	// 4. InfluxDB / MQTT (if enabled)
	// 5. Database

	log.Info("Gatewise Core stopped")
	return nil
}

// eventObserver fans manager measurements out to the WebSocket hub, the
// MQTT bus and InfluxDB. The mqtt and influx fields may be nil when the
// respective integration is disabled.
type eventObserver struct {
	hub    *api.Hub
	mqtt   *mqtt.Client
	influx *telemetry.Client
	topics mqtt.Topics
}

func (o *eventObserver) ObserveCommand(deviceID string, action barrier.Action, success bool, elapsed time.Duration) {
	if o.influx != nil {
		o.influx.ObserveCommand(deviceID, action, success, elapsed)
	}
}

func (o *eventObserver) ObserveCapture(deviceID string, confidence float64) {
	if o.influx != nil {
		o.influx.ObserveCapture(deviceID, confidence)
	}
}

func (o *eventObserver) ObserveConnectivity(deviceID string, online bool) {
	payload := map[string]any{
		"device_id": deviceID,
		"online":    online,
	}
	o.hub.Broadcast(api.ChannelConnectivity, payload)
	if o.mqtt != nil {
		o.mqtt.PublishJSON(o.topics.Connectivity(deviceID), payload, true)
	}
	if o.influx != nil {
		o.influx.ObserveConnectivity(deviceID, online)
	}
}

// getConfigPath returns the configuration file path.
// Uses GATEWISE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GATEWISE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB are skipped when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influx *telemetry.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influx != nil {
		if err := influx.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
