// Victron Bridge
//
// This is the main entry point for the bridge between a Venus OS device's
// MQTT bus and a set of flow nodes: input nodes that watch values, output
// nodes that write them, virtual devices and notifications.
//
// Usage:
//
//	victron-bridge              run the bridge
//	victron-bridge token NAME   print an API access token for NAME
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/victronenergy/node-red-contrib-victron-sub001/migrations"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/api"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/broker"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/flow"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/history"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/config"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/database"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/influxdb"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/logging"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/metrics"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/mqtt"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/node"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/virtual"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Startup does not wait for the MQTT broker: subscriptions made while the
// bus is down are queued by the Broker and made on connect, so flows are
// deployed immediately.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting victron bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "portal_id", cfg.Site.PortalID)

	m := metrics.New()

	// Database: virtual device identities and persisted values.
	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	if healthErr := db.HealthCheck(ctx); healthErr != nil {
		return fmt.Errorf("database health check: %w", healthErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// MQTT transport, retried in the background until the broker answers.
	mqttClient := mqtt.Start(cfg.MQTT)
	mqttClient.SetLogger(log.Component("mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connecting",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"topic_prefix", cfg.MQTT.TopicPrefix,
	)

	busClient := bus.NewClient(mqttClient, byte(cfg.MQTT.QoS), log.Component("bus"))

	b := broker.New(busClient, nil)
	b.SetLogger(log.Component("broker"))
	b.SetMetrics(m)
	busClient.OnConnect(b.HandleConnect)
	busClient.OnDisconnect(b.HandleDisconnect)
	if watchErr := busClient.WatchServices(b.HandleService); watchErr != nil {
		log.Warn("watching service presence failed", "error", watchErr)
	}

	repo := virtual.NewSQLiteRepository(db.DB)
	devices := virtual.NewManager(repo, cfg.Runtime.VirtualInstanceBase)
	devices.SetLogger(log.Component("virtual"))
	devices.SetMetrics(m)

	deps := node.Deps{
		Broker:            b,
		Bus:               busClient,
		Publisher:         busClient,
		Devices:           devices,
		Values:            repo,
		Logger:            log.Component("node"),
		Metrics:           m,
		DefaultDebounceMS: cfg.Runtime.DefaultDebounceMS,
		VirtualSetupDelay: cfg.VirtualSetupDelay(),
	}

	// InfluxDB is optional; when enabled it records conditional results and
	// the configured bus values.
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
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
		deps.Results = influxClient

		recorder := history.NewRecorder(b, influxClient)
		if startErr := recorder.Start(recordAddresses(cfg.InfluxDB.Record)); startErr != nil {
			return fmt.Errorf("starting history recorder: %w", startErr)
		}
		defer recorder.Stop()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket, "recorded", len(cfg.InfluxDB.Record))
	} else {
		log.Info("InfluxDB disabled")
	}

	flows := flow.New(deps, b, devices, flow.Options{ReconcileOnDeploy: cfg.Runtime.ReconcileOnDeploy})
	flows.SetLogger(log.Component("flow"))
	defer func() {
		log.Info("stopping flow nodes")
		flows.Shutdown()
	}()

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log.Component("api"),
		Broker:    b,
		Flows:     flows,
		Bus:       busClient,
		Metrics:   m,
		DB:        db,
		FlowsFile: cfg.Runtime.FlowsFile,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	flows.SetHub(server.Hub())

	if err := deployFlowsFile(ctx, flows, cfg.Runtime.FlowsFile, log); err != nil {
		return err
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, flow nodes, history, InfluxDB,
	// MQTT, database.
	return nil
}

// deployFlowsFile deploys the nodes saved in path. A missing file starts
// an empty flow. Per-node start failures are logged, not fatal.
func deployFlowsFile(ctx context.Context, flows *flow.Runtime, path string, log *logging.Logger) error {
	if path == "" {
		log.Info("no flows file configured, waiting for deploy")
		return nil
	}
	cfgs, err := flow.LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading flows: %w", err)
	}
	result, err := flows.Deploy(ctx, cfgs)
	if err != nil {
		return fmt.Errorf("deploying flows: %w", err)
	}
	for id, reason := range result.Failed {
		log.Warn("node failed to start", "node_id", id, "reason", reason)
	}
	log.Info("flows deployed", "path", path, "started", len(result.Started), "failed", len(result.Failed))
	return nil
}

func recordAddresses(records []config.RecordConfig) []bus.Address {
	addrs := make([]bus.Address, 0, len(records))
	for _, r := range records {
		addrs = append(addrs, bus.NewAddress(r.Service, r.Path))
	}
	return addrs
}

// tokenTTL mirrors the API server's access token lifetime.
func tokenTTL(cfg *config.Config) time.Duration {
	if cfg.Security.JWT.AccessTokenTTL <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
}

// printToken implements the token subcommand.
func printToken(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: victron-bridge token <subject>")
	}
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := api.IssueToken(cfg.Security.JWT.Secret, args[0], tokenTTL(cfg))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VICTRON_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VICTRON_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
