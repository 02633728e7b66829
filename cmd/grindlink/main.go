// Grindlink Core - grinder connectivity daemon
//
// Grindlink owns the network side of a connected coffee grinder: WiFi and
// MQTT connection management with exponential-backoff reconnection, an
// at-least-once bounded publish queue for grind session records, and the
// serial link to the grind controller.
//
// Two modes exist, selected by relay.enabled in config:
//   - direct (default): this daemon hosts the WiFi/MQTT managers and serves
//     the serial protocol to the grind controller
//   - relay: connectivity lives on a dedicated relay board; this daemon
//     forwards sessions over serial and mirrors the board's status
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grindwise/grindlink-core/internal/conn"
	"github.com/grindwise/grindlink-core/internal/infrastructure/config"
	"github.com/grindwise/grindlink-core/internal/infrastructure/influxdb"
	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
	"github.com/grindwise/grindlink-core/internal/infrastructure/prefs"
	"github.com/grindwise/grindlink-core/internal/relay"
	"github.com/grindwise/grindlink-core/internal/session"
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
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Grindlink Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	deviceID := cfg.Device.ID
	if deviceID == "" {
		deviceID = session.DeviceID()
	}
	log.Info("device identity", "device_id", deviceID)

	// Connect to InfluxDB (optional mirror)
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.Relay.Enabled {
		return runRelayMode(ctx, cfg, log)
	}
	return runDirectMode(ctx, cfg, deviceID, influxClient, log)
}

// runDirectMode hosts the connection managers and serves the serial
// protocol to the grind controller.
func runDirectMode(ctx context.Context, cfg *config.Config, deviceID string, influxClient *influxdb.Client, log *logging.Logger) error {
	store, err := prefs.Open(prefs.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening preferences store: %w", err)
	}
	defer func() {
		log.Info("closing preferences store")
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing preferences store", "error", closeErr)
		}
	}()
	log.Info("preferences store opened", "path", store.Path())

	wifiTransport := conn.NewInterfaceTransport(cfg.Network.WiFi.Interface)
	wifi := conn.NewWiFiManager(wifiTransport, store, cfg.Network.WiFi, log)

	// The transport reads broker config lazily at connect time, so the
	// closure over the not-yet-constructed manager is safe.
	var mqtt *conn.MQTTManager
	brokerTransport := conn.NewPahoTransport(deviceID,
		func() conn.BrokerConfig { return mqtt.BrokerConfig() },
		cfg.Network.MQTT, log)
	mqtt = conn.NewMQTTManager(brokerTransport, store, cfg.Network.MQTT, deviceID, wifi.IsConnected, log)
	mqtt.SetPublishCallback(func(sessionID uint32, result conn.PublishResult) {
		log.Info("publish outcome", "session_id", sessionID, "result", result.String())
	})

	// Serial link to the grind controller (optional: the daemon runs
	// headless without one).
	var server *relay.Server
	if cfg.Relay.Device != "" {
		port, err := openSerial(cfg.Relay.Device, cfg.Relay.Baud, log)
		if err != nil {
			return fmt.Errorf("opening serial device: %w", err)
		}
		defer port.Close()

		broker := &mirroringBroker{
			mqtt:     mqtt,
			influx:   influxClient,
			deviceID: deviceID,
			log:      log,
		}
		server = relay.NewServer(port, wifi, broker, log)
	} else {
		log.Info("no serial device configured, running headless")
	}

	// Status observers: log every transition, chart it, and schedule an
	// unsolicited status frame for the controller.
	observe := func(link string) conn.StatusCallback {
		return func(status conn.Status) {
			log.Info("link transition", "link", link, "status", status.String())
			if influxClient != nil {
				influxClient.WriteLinkStatus(deviceID, link, status.String())
			}
			if server != nil {
				server.MarkDirty()
			}
		}
	}
	wifi.SetStatusCallback(observe("wifi"))
	mqtt.SetStatusCallback(observe("mqtt"))

	// Restore persisted state; links that were enabled reconnect now.
	wifi.Init()
	mqtt.Init()

	log.Info("initialisation complete", "tick_interval", cfg.Network.GetTickInterval())

	ticker := time.NewTicker(cfg.Network.GetTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, cleaning up")
			mqtt.Shutdown()
			wifi.Shutdown()
			log.Info("Grindlink Core stopped")
			return nil

		case <-ticker.C:
			// WiFi first: the MQTT prerequisite check sees this tick's
			// WiFi state, not the last one's.
			wifi.Handle()
			mqtt.Handle()
			if server != nil {
				server.Handle()
			}
		}
	}
}

// runRelayMode forwards connectivity to a dedicated relay board over the
// serial device and mirrors its status.
func runRelayMode(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	if cfg.Relay.Device == "" {
		return fmt.Errorf("relay mode requires relay.device")
	}

	port, err := openSerial(cfg.Relay.Device, cfg.Relay.Baud, log)
	if err != nil {
		return fmt.Errorf("opening serial device: %w", err)
	}
	defer port.Close()

	client := relay.NewClient(port, cfg.Relay.GetStatusInterval(), log)
	log.Info("relay mode active", "device", cfg.Relay.Device)

	ticker := time.NewTicker(cfg.Network.GetTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			log.Info("Grindlink Core stopped")
			return nil

		case <-ticker.C:
			client.Handle()
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses GRINDLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRINDLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openSerial opens the serial device for the relay link. Line settings
// (baud, raw mode) are applied by the host before startup, e.g.
//
//	stty -F /dev/ttyUSB0 115200 raw -echo
//
// so the daemon only needs a plain read/write handle.
func openSerial(device string, baud int, log *logging.Logger) (io.ReadWriteCloser, error) {
	f, err := os.OpenFile(device, os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", device, err)
	}
	log.Info("serial device opened", "device", device, "expected_baud", baud)
	return f, nil
}

// mirroringBroker wraps the MQTT manager's relay surface so sessions
// relayed from the grind controller also land in the InfluxDB mirror.
type mirroringBroker struct {
	mqtt     *conn.MQTTManager
	influx   *influxdb.Client
	deviceID string
	log      *logging.Logger
}

// IsConnected implements relay.BrokerState.
func (b *mirroringBroker) IsConnected() bool {
	return b.mqtt.IsConnected()
}

// PublishRaw implements relay.BrokerState.
func (b *mirroringBroker) PublishRaw(sessionID uint32, payload []byte) (conn.PublishResult, error) {
	result, err := b.mqtt.PublishRaw(sessionID, payload)
	if err != nil || result == conn.ResultRejected || b.influx == nil {
		return result, err
	}

	s, parseErr := session.ParseRecord(payload)
	if parseErr != nil {
		b.log.Warn("session record not mirrorable", "session_id", sessionID, "error", parseErr)
		return result, err
	}
	b.influx.WriteSessionMetrics(b.deviceID, s)
	return result, err
}
