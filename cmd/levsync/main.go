// levsync mirrors a Leviton smart-panel cloud account into local
// infrastructure: an in-memory device snapshot, a SQLite energy ledger,
// and optional MQTT / InfluxDB / HTTP read-side sinks.
//
// The sync engine prefers the cloud's WebSocket push channel and falls
// back to REST polling whenever push is down. Breaker control commands
// flow in over MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/leviton-sync/migrations"

	"github.com/nerrad567/leviton-sync/internal/api"
	"github.com/nerrad567/leviton-sync/internal/discovery"
	"github.com/nerrad567/leviton-sync/internal/energy"
	"github.com/nerrad567/leviton-sync/internal/engine"
	"github.com/nerrad567/leviton-sync/internal/infrastructure/config"
	"github.com/nerrad567/leviton-sync/internal/infrastructure/database"
	"github.com/nerrad567/leviton-sync/internal/infrastructure/influxdb"
	"github.com/nerrad567/leviton-sync/internal/infrastructure/logging"
	"github.com/nerrad567/leviton-sync/internal/infrastructure/mqtt"
	"github.com/nerrad567/leviton-sync/internal/leviton"
	"github.com/nerrad567/leviton-sync/internal/livesync"
	"github.com/nerrad567/leviton-sync/internal/metrics"
	"github.com/nerrad567/leviton-sync/internal/republish"
	"github.com/nerrad567/leviton-sync/internal/store"
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

// metricsSampleInterval is how often the snapshot is sampled into InfluxDB.
const metricsSampleInterval = 30 * time.Second

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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting levsync",
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

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolving timezone: %w", err)
	}

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

	// Cloud transport
	lev := leviton.NewClient(cfg.Account.Email, cfg.Account.Password,
		leviton.WithBaseURL(cfg.Account.BaseURL),
		leviton.WithSocketURL(cfg.Account.SocketURL),
		leviton.WithLogger(log),
	)

	// Sync core: store, energy ledger, discovery, live channel, engine
	st := store.New()
	tracker := energy.NewTracker(energy.NewSQLiteRepository(db), st, loc, log)
	disc := discovery.New(lev, cfg.GetBandwidthSettleDelay(), log)

	live := livesync.NewManager(lev, func() (livesync.Socket, error) {
		sock, sockErr := lev.NewSocket()
		if sockErr != nil {
			return nil, sockErr
		}
		return sock, nil
	}, st, livesync.Config{
		WatchdogInterval:           cfg.GetWatchdogInterval(),
		StalenessThreshold:         cfg.GetStalenessThreshold(),
		ProactiveRefreshInterval:   cfg.GetProactiveRefreshInterval(),
		BandwidthKeepaliveInterval: cfg.GetBandwidthKeepaliveInterval(),
		ReconnectDelays:            cfg.GetReconnectDelays(),
	}, log)
	live.OnAuthExpired(func() {
		log.Error("cloud session rejected during reconnect; check account credentials")
	})

	eng := engine.New(lev, disc, live, tracker, st, engine.Config{
		PollInterval:         cfg.GetPollInterval(),
		BandwidthSettleDelay: cfg.GetBandwidthSettleDelay(),
		Location:             loc,
	}, log)

	// Connect to MQTT broker (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
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

		rep := republish.New(mqttClient, eng, st, tracker, log)
		go func() {
			if repErr := rep.Start(ctx); repErr != nil && !errors.Is(repErr, context.Canceled) {
				log.Error("republisher stopped", "error", repErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
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

		writer := metrics.New(influxClient, st, tracker, metricsSampleInterval, log)
		go func() {
			if wErr := writer.Run(ctx); wErr != nil && !errors.Is(wErr, context.Canceled) {
				log.Error("metrics writer stopped", "error", wErr)
			}
		}()
	} else {
		log.Info("InfluxDB disabled")
	}

	// Status API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Store:   st,
			Tracker: tracker,
			Sync:    eng,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, starting sync engine")

	// Blocks until ctx is cancelled; a first-refresh discovery failure
	// surfaces here.
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync engine: %w", err)
	}

	log.Info("levsync stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LEVSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LEVSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
