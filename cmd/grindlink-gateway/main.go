// Grindlink Gateway - network relay board daemon
//
// The gateway runs on a dedicated relay board wired to the grind controller
// over serial. It hosts the WiFi and MQTT connection managers, serves the
// serial relay protocol (pub/status), and exposes an operator console on
// stdin for provisioning:
//
//	wifi ssid=HomeNet pass=hunter22
//	mqtt broker=mqtt.home.lan port=1883
//	status | reset | help
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grindwise/grindlink-core/internal/conn"
	"github.com/grindwise/grindlink-core/internal/infrastructure/config"
	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
	"github.com/grindwise/grindlink-core/internal/infrastructure/prefs"
	"github.com/grindwise/grindlink-core/internal/relay"
	"github.com/grindwise/grindlink-core/internal/session"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/gateway.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Grindlink Gateway",
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
	log.Info("logger initialised", "level", cfg.Logging.Level)

	deviceID := cfg.Device.ID
	if deviceID == "" {
		deviceID = session.DeviceID()
	}
	log.Info("device identity", "device_id", deviceID)

	store, err := prefs.Open(prefs.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening preferences store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing preferences store", "error", closeErr)
		}
	}()

	wifiTransport := conn.NewInterfaceTransport(cfg.Network.WiFi.Interface)
	wifi := conn.NewWiFiManager(wifiTransport, store, cfg.Network.WiFi, log)

	var mqtt *conn.MQTTManager
	brokerTransport := conn.NewPahoTransport(deviceID,
		func() conn.BrokerConfig { return mqtt.BrokerConfig() },
		cfg.Network.MQTT, log)
	mqtt = conn.NewMQTTManager(brokerTransport, store, cfg.Network.MQTT, deviceID, wifi.IsConnected, log)

	// Serial link to the grind controller.
	var server *relay.Server
	if cfg.Relay.Device != "" {
		port, err := openSerial(cfg.Relay.Device, cfg.Relay.Baud, log)
		if err != nil {
			return fmt.Errorf("opening serial device: %w", err)
		}
		defer port.Close()
		server = relay.NewServer(port, wifi, mqtt, log)
	} else {
		log.Warn("no serial device configured, console only")
	}

	observe := func(link string) conn.StatusCallback {
		return func(status conn.Status) {
			log.Info("link transition", "link", link, "status", status.String())
			if server != nil {
				server.MarkDirty()
			}
		}
	}
	wifi.SetStatusCallback(observe("wifi"))
	mqtt.SetStatusCallback(observe("mqtt"))

	wifi.Init()
	mqtt.Init()

	// Operator console on stdin.
	console := relay.NewConsole(wifi, mqtt, store, log)
	consoleLines := make(chan string, 4)
	go readConsole(os.Stdin, consoleLines)

	log.Info("initialisation complete", "tick_interval", cfg.Network.GetTickInterval())

	ticker := time.NewTicker(cfg.Network.GetTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, cleaning up")
			mqtt.Shutdown()
			wifi.Shutdown()
			log.Info("Grindlink Gateway stopped")
			return nil

		case line := <-consoleLines:
			if out := console.Execute(line); out != "" {
				fmt.Println(out)
			}

		case <-ticker.C:
			wifi.Handle()
			mqtt.Handle()
			if server != nil {
				server.Handle()
			}
		}
	}
}

// readConsole feeds stdin lines into the main loop.
func readConsole(r io.Reader, lines chan<- string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func getConfigPath() string {
	if path := os.Getenv("GRINDLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openSerial opens the serial device for the relay link. Line settings are
// applied by the host before startup (stty -F <dev> 115200 raw -echo).
func openSerial(device string, baud int, log *logging.Logger) (io.ReadWriteCloser, error) {
	f, err := os.OpenFile(device, os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", device, err)
	}
	log.Info("serial device opened", "device", device, "expected_baud", baud)
	return f, nil
}
