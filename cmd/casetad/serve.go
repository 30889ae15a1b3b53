package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mqttbridge "github.com/nerrad567/caseta-leap/internal/bridges/mqtt"
	"github.com/nerrad567/caseta-leap/internal/caseta"
	"github.com/nerrad567/caseta-leap/internal/infrastructure/config"
	"github.com/nerrad567/caseta-leap/internal/infrastructure/influxdb"
	"github.com/nerrad567/caseta-leap/internal/infrastructure/logging"
	"github.com/nerrad567/caseta-leap/internal/infrastructure/mqtt"
	"github.com/nerrad567/caseta-leap/internal/infrastructure/mtls"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon",
	Long: `Run the long-lived daemon: connect to the Smart Bridge, keep the
device and scene caches current, and (if enabled) mirror state and
commands over MQTT with zone telemetry exported to InfluxDB.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return run(ctx)
	},
}

// run is the actual daemon logic, separated from the command for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting casetad",
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

	// Build the mutual TLS identity for the Smart Bridge
	tlsCfg, err := mtls.Load(cfg.Bridge)
	if err != nil {
		return fmt.Errorf("loading bridge certificates: %w", err)
	}
	log.Info("bridge certificates loaded", "cert", cfg.Bridge.CertFile)

	// Connect to the Smart Bridge
	bridge, err := caseta.Connect(ctx, caseta.Config{
		Host:   cfg.Bridge.Host,
		Port:   cfg.Bridge.Port,
		TLS:    tlsCfg,
		Logger: log.With("component", "caseta"),
	})
	if err != nil {
		return fmt.Errorf("connecting to bridge: %w", err)
	}
	defer func() {
		log.Info("closing bridge connection")
		if closeErr := bridge.Close(); closeErr != nil {
			log.Error("error closing bridge", "error", closeErr)
		}
	}()
	log.Info("bridge connected",
		"host", cfg.Bridge.Host,
		"port", cfg.Bridge.Port,
		"devices", len(bridge.Devices()),
		"scenes", len(bridge.Scenes()),
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker and start the state/command bridge (optional)
	if cfg.MQTT.Enabled {
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		// Optional telemetry recorder for zone level changes
		var recorder mqttbridge.Recorder
		if influxClient != nil {
			recorder = influxClient
		}

		stateBridge, err := mqttbridge.NewBridge(mqttbridge.BridgeOptions{
			MQTTClient: mqttClient,
			Controller: bridge,
			QoS:        byte(cfg.MQTT.QoS),
			Logger:     log.With("component", "mqtt-bridge"),
			Recorder:   recorder,
		})
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}
		if err := stateBridge.Start(); err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			stateBridge.Stop()
		}()
	} else {
		log.Info("MQTT bridge disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	stats := bridge.Stats()
	log.Info("session stats",
		"messages_rx", stats.MessagesRx,
		"messages_tx", stats.MessagesTx,
		"logins", stats.Logins,
		"errors", stats.ErrorsTotal,
	)

	// Deferred Close() calls run in reverse order:
	// 1. MQTT bridge, then MQTT client (if enabled)
	// 2. InfluxDB (if enabled)
	// 3. Bridge connection

	log.Info("casetad stopped")
	return nil
}
