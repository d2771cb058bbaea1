// Homestream - real-time notification and automation service
//
// Homestream is the push boundary of a smart-home backend: it consumes
// device and system events from the log broker and the work queue, fans
// them out to connected websocket clients, and fires user-defined
// automation rules whose device commands flow back out through the work
// queue. Multiple instances coordinate through a relay channel so every
// client sees every notification exactly once.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/homestream/homestream/migrations"

	"github.com/redis/go-redis/v9"

	"github.com/homestream/homestream/internal/automation"
	"github.com/homestream/homestream/internal/infrastructure/config"
	"github.com/homestream/homestream/internal/infrastructure/database"
	"github.com/homestream/homestream/internal/infrastructure/influxdb"
	"github.com/homestream/homestream/internal/infrastructure/kafka"
	"github.com/homestream/homestream/internal/infrastructure/logging"
	"github.com/homestream/homestream/internal/infrastructure/mqtt"
	"github.com/homestream/homestream/internal/infrastructure/queue"
	"github.com/homestream/homestream/internal/infrastructure/relay"
	"github.com/homestream/homestream/internal/ingest"
	"github.com/homestream/homestream/internal/notify"
	"github.com/homestream/homestream/internal/session"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Homestream",
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

	// Open rule store
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to Redis; the work queue and the relay channel share it
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		log.Info("closing redis connection")
		if closeErr := redisClient.Close(); closeErr != nil {
			log.Error("error closing redis", "error", closeErr)
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("verifying redis connection: %w", err)
	}
	log.Info("redis connected", "url", cfg.Redis.URL)

	// Connect to InfluxDB (optional telemetry)
	var influxClient *influxdb.Client
	var sessionMetrics session.SessionMetrics
	var eventMetrics ingest.EventMetrics
	var deliveryMetrics notify.DeliveryMetrics
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		sessionMetrics = influxClient
		eventMetrics = influxClient
		deliveryMetrics = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Assemble the pipeline: registry -> fanout -> engine -> multiplexer
	registry := session.NewRegistry(log)

	relayChannel := relay.New(redisClient, cfg.Relay.Channel, log)
	fanout := notify.NewFanout(notify.WrapRegistry(registry), relayChannel, log, deliveryMetrics)
	log.Info("fan-out initialised", "instance_id", fanout.InstanceID(), "relay_channel", cfg.Relay.Channel)

	workQueue := queue.New(redisClient, cfg.Queue, fanout.InstanceID(), log)

	ruleRepo := automation.NewSQLiteRepository(db.DB)
	multiplexer := ingest.NewMultiplexer(fanout, nil, log, eventMetrics)
	engine := automation.NewEngine(ruleRepo, workQueue, cfg.Queue.CommandStream, multiplexer, log, cfg.Automation.ConcurrencyGuard)
	multiplexer.SetEvaluator(engine)

	// Log-broker consumer
	consumer, err := kafka.NewConsumer(cfg.Kafka, multiplexer.HandleBrokerEvent, log)
	if err != nil {
		return fmt.Errorf("creating broker consumer: %w", err)
	}
	defer func() {
		log.Info("closing broker consumer")
		if closeErr := consumer.Close(); closeErr != nil {
			log.Error("error closing broker consumer", "error", closeErr)
		}
	}()

	// Optional sensor-telemetry source
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

		topics := mqtt.Topics{}
		if subErr := mqttClient.Subscribe(topics.AllEvents(), byte(cfg.MQTT.QoS), multiplexer.HandleTelemetry); subErr != nil {
			return fmt.Errorf("subscribing to telemetry: %w", subErr)
		}
		log.Info("telemetry source connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic", topics.AllEvents(),
		)
	} else {
		log.Info("telemetry source disabled")
	}

	server := session.NewServer(cfg.WebSocket, registry, log)
	supervisor := session.NewSupervisor(registry, cfg.GetPingInterval(), log, sessionMetrics)

	log.Info("initialisation complete")

	// Run the long-lived loops; the first failure tears everything down
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return consumer.Run(groupCtx) })
	group.Go(func() error { return workQueue.Consume(groupCtx, cfg.Queue.IngressStream, multiplexer.HandleQueueMessage) })
	group.Go(func() error { return relayChannel.Subscribe(groupCtx, fanout.HandleRelayed) })
	group.Go(func() error { return server.Run(groupCtx) })
	group.Go(func() error { return supervisor.Run(groupCtx) })

	err = group.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}

	log.Info("Homestream stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOMESTREAM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMESTREAM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
