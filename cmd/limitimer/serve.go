package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/limitimer-bridge/internal/api"
	"github.com/nerrad567/limitimer-bridge/internal/bridges/messenger"
	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/config"
	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/database"
	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/limitimer-bridge/internal/journal"
	"github.com/nerrad567/limitimer-bridge/internal/panel"
	"github.com/nerrad567/limitimer-bridge/migrations"
)

// run is the bridge itself, separated from the cobra wiring for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // startup sequence: each optional subsystem adds a branch
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Limitimer bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer func() {
		_ = log.Close()
	}()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	devices, err := buildDevices(cfg, log)
	if err != nil {
		return fmt.Errorf("creating devices: %w", err)
	}

	// Journal (optional)
	var db *database.DB
	var journalRepo *journal.SQLiteRepository
	var recorder *journal.Recorder
	if cfg.Journal.Enabled {
		db, err = openDatabase(ctx, cfg.Database, log)
		if err != nil {
			stopDevices(devices, log)
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		journalRepo = journal.NewSQLiteRepository(db.DB)
		recorder, err = journal.NewRecorder(journal.RecorderOptions{
			Repo:      journalRepo,
			Retention: cfg.Journal.Retention(),
			Logger:    log,
		})
		if err != nil {
			stopDevices(devices, log)
			return fmt.Errorf("creating journal recorder: %w", err)
		}
		for _, md := range devices {
			recorder.Attach(md.device)
		}
		log.Info("journal enabled", "retention_days", cfg.Journal.RetentionDays)
	} else {
		log.Info("journal disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			stopDevices(devices, log)
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection", "points", influxClient.PointsWritten())
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		for _, md := range devices {
			recordHistory(influxClient, md.device)
		}
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker and start the messenger bridge (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			stopDevices(devices, log)
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT", "stats", mqttClient.Stats())
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge, bridgeErr := startMessenger(ctx, cfg, mqttClient, devices, log)
		if bridgeErr != nil {
			stopDevices(devices, log)
			return fmt.Errorf("starting messenger bridge: %w", bridgeErr)
		}
		defer func() {
			log.Info("stopping messenger bridge")
			bridge.Stop()
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// Start the HTTP API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := startAPI(ctx, cfg, devices, journalRepo, log)
		if apiErr != nil {
			stopDevices(devices, log)
			return fmt.Errorf("starting API: %w", apiErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	// The recorder outlives the devices so their final transitions are
	// journaled, then drains.
	recorderCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	var workers errgroup.Group
	if recorder != nil {
		workers.Go(func() error {
			return recorder.Run(recorderCtx)
		})
	}
	defer func() {
		log.Info("stopping devices")
		stopDevices(devices, log)
		stopRecorder()
		if waitErr := workers.Wait(); waitErr != nil {
			log.Error("error stopping workers", "error", waitErr)
		}
	}()

	if err := startDevices(ctx, devices); err != nil {
		return fmt.Errorf("starting devices: %w", err)
	}
	log.Info("devices started", "count", len(devices))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred cleanup runs in reverse order:
	// 1. Devices, then the journal recorder
	// 2. API server
	// 3. Messenger bridge, then MQTT
	// 4. InfluxDB (if enabled)
	// 5. Database

	log.Info("Limitimer bridge stopped")
	return nil
}

// openDatabase opens the SQLite journal database and applies migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Path)

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	return db, nil
}

// startMessenger creates and starts the MQTT presentation bridge.
//
// Parameters:
//   - ctx: Context for the health reporter
//   - cfg: Application configuration
//   - mqttClient: Connected MQTT client
//   - devices: Devices to expose
//   - log: Logger instance
//
// Returns:
//   - *messenger.Bridge: Running bridge
//   - error: If the bridge cannot subscribe to command topics
func startMessenger(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, devices []*managedDevice, log *logging.Logger) (*messenger.Bridge, error) {
	bindings := make([]messenger.DeviceBinding, 0, len(devices))
	for _, md := range devices {
		bindings = append(bindings, messenger.DeviceBinding{Device: md.device, Link: md.link})
	}

	bridge, err := messenger.NewBridge(messenger.BridgeOptions{
		MQTTClient:     &mqttBridgeAdapter{client: mqttClient},
		Devices:        bindings,
		TopicPrefix:    cfg.MQTT.TopicPrefix,
		QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2 by config
		HealthInterval: time.Duration(cfg.MQTT.HealthInterval) * time.Second,
		Version:        version,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating messenger bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return nil, err
	}
	log.Info("messenger bridge started", "prefix", cfg.MQTT.TopicPrefix)

	return bridge, nil
}

// startAPI creates and starts the HTTP API server.
func startAPI(ctx context.Context, cfg *config.Config, devices []*managedDevice, journalRepo *journal.SQLiteRepository, log *logging.Logger) (*api.Server, error) {
	apiDevices := make([]api.Device, 0, len(devices))
	for _, md := range devices {
		apiDevices = append(apiDevices, md.device)
	}

	deps := api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Devices: apiDevices,
		Version: version,
	}
	// A nil *SQLiteRepository must not become a non-nil interface
	if journalRepo != nil {
		deps.Journal = journalRepo
	}
	if cfg.API.Panel.Enabled {
		h, err := panel.Handler(cfg.API.Panel.Dir)
		if err != nil {
			return nil, err
		}
		deps.Panel = h
		log.Info("status panel enabled", "dir", cfg.API.Panel.Dir)
	}

	srv, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return srv, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check (may be nil if the journal is disabled)
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Device links are not checked: they reconnect in the background and
	// their state is reported through health messages instead.

	return nil
}
