package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Grindlink.
// All configuration is loaded from YAML and can be overridden by environment variables.
//
// Network credentials (WiFi SSID/password, MQTT broker details) are NOT part
// of this file: they live in the persistent preferences store, mirroring the
// NVS storage on the original controller hardware, and are set at runtime via
// the configuration surfaces (gateway console, relay protocol).
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Storage  StorageConfig  `yaml:"storage"`
	Network  NetworkConfig  `yaml:"network"`
	Relay    RelayConfig    `yaml:"relay"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig contains device identification settings.
type DeviceConfig struct {
	// ID overrides the derived device identifier used in MQTT topics.
	// When empty, the ID is derived from the first hardware MAC address.
	ID string `yaml:"id"`
}

// StorageConfig contains preferences store settings.
type StorageConfig struct {
	// Path is the filesystem path to the SQLite preferences database.
	Path string `yaml:"path"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int `yaml:"busy_timeout"`
}

// NetworkConfig contains connection-manager tuning.
type NetworkConfig struct {
	// TickInterval is the driver cadence for manager Handle() calls, in
	// milliseconds. The original controller runs its network task at 2 Hz.
	TickInterval int `yaml:"tick_interval"`

	WiFi WiFiSettings `yaml:"wifi"`
	MQTT MQTTSettings `yaml:"mqtt"`
}

// WiFiSettings contains WiFi link tuning. All durations are in seconds.
type WiFiSettings struct {
	// Interface is the wireless interface to monitor (e.g. "wlan0").
	Interface string `yaml:"interface"`

	ConnectTimeout       int `yaml:"connect_timeout"`
	ReconnectBaseline    int `yaml:"reconnect_baseline"`
	ReconnectCeiling     int `yaml:"reconnect_ceiling"`
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
}

// MQTTSettings contains MQTT link and publish-queue tuning.
// Durations are in seconds.
type MQTTSettings struct {
	ConnectTimeout    int `yaml:"connect_timeout"`
	ReconnectBaseline int `yaml:"reconnect_baseline"`
	ReconnectCeiling  int `yaml:"reconnect_ceiling"`
	KeepAlive         int `yaml:"keep_alive"`
	PublishTimeout    int `yaml:"publish_timeout"`

	// QueueCapacity bounds the pending-publish queue. Once full, new
	// publishes are rejected, never silently dropped.
	QueueCapacity int `yaml:"queue_capacity"`

	// MaxPublishRetries is the per-message retry ceiling before a queued
	// publish is dropped.
	MaxPublishRetries int `yaml:"max_publish_retries"`
}

// RelayConfig contains serial relay link settings.
//
// When Enabled, the primary daemon delegates all connectivity to a relay
// board over the serial device instead of hosting WiFi/MQTT itself.
type RelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Device  string `yaml:"device"`
	Baud    int    `yaml:"baud"`

	// StatusInterval is how often to poll the relay for status (seconds).
	StatusInterval int `yaml:"status_interval"`
}

// InfluxDBConfig contains settings for the optional session-metric mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRINDLINK_SECTION_KEY
// For example: GRINDLINK_STORAGE_PATH, GRINDLINK_WIFI_INTERFACE
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the original controller's timing
// constants as defaults.
func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:        "./data/grindlink.db",
			BusyTimeout: 5,
		},
		Network: NetworkConfig{
			TickInterval: 500,
			WiFi: WiFiSettings{
				Interface:            "wlan0",
				ConnectTimeout:       10,
				ReconnectBaseline:    5,
				ReconnectCeiling:     30,
				MaxReconnectAttempts: 3,
			},
			MQTT: MQTTSettings{
				ConnectTimeout:    10,
				ReconnectBaseline: 5,
				ReconnectCeiling:  30,
				KeepAlive:         60,
				PublishTimeout:    5,
				QueueCapacity:     10,
				MaxPublishRetries: 3,
			},
		},
		Relay: RelayConfig{
			Device:         "/dev/ttyUSB0",
			Baud:           115200,
			StatusInterval: 10,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "grind_sessions",
			BatchSize:     20,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRINDLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRINDLINK_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}
	if v := os.Getenv("GRINDLINK_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("GRINDLINK_WIFI_INTERFACE"); v != "" {
		cfg.Network.WiFi.Interface = v
	}
	if v := os.Getenv("GRINDLINK_RELAY_DEVICE"); v != "" {
		cfg.Relay.Device = v
	}
	if v := os.Getenv("GRINDLINK_RELAY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Relay.Enabled = b
		}
	}
	if v := os.Getenv("GRINDLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Storage.Path == "" {
		errs = append(errs, "storage.path is required")
	}
	if c.Network.TickInterval <= 0 {
		errs = append(errs, "network.tick_interval must be positive")
	}

	if c.Network.WiFi.Interface == "" {
		errs = append(errs, "network.wifi.interface is required")
	}
	if msg := validateBackoff("network.wifi", c.Network.WiFi.ReconnectBaseline, c.Network.WiFi.ReconnectCeiling); msg != "" {
		errs = append(errs, msg)
	}
	if msg := validateBackoff("network.mqtt", c.Network.MQTT.ReconnectBaseline, c.Network.MQTT.ReconnectCeiling); msg != "" {
		errs = append(errs, msg)
	}

	if c.Network.MQTT.QueueCapacity <= 0 {
		errs = append(errs, "network.mqtt.queue_capacity must be positive")
	}
	if c.Network.MQTT.MaxPublishRetries <= 0 {
		errs = append(errs, "network.mqtt.max_publish_retries must be positive")
	}

	if c.Relay.Enabled {
		if c.Relay.Device == "" {
			errs = append(errs, "relay.device is required when relay is enabled")
		}
		if c.Relay.Baud <= 0 {
			errs = append(errs, "relay.baud must be positive")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateBackoff checks a baseline/ceiling pair for sanity.
// Returns an error description, or "" if valid.
func validateBackoff(section string, baseline, ceiling int) string {
	if baseline <= 0 {
		return section + ".reconnect_baseline must be positive"
	}
	if ceiling < baseline {
		return section + ".reconnect_ceiling must be >= reconnect_baseline"
	}
	return ""
}

// GetTickInterval returns the driver cadence as a Duration.
func (n NetworkConfig) GetTickInterval() time.Duration {
	return time.Duration(n.TickInterval) * time.Millisecond
}

// GetConnectTimeout returns the WiFi connect timeout as a Duration.
func (w WiFiSettings) GetConnectTimeout() time.Duration {
	return time.Duration(w.ConnectTimeout) * time.Second
}

// GetReconnectBaseline returns the WiFi backoff baseline as a Duration.
func (w WiFiSettings) GetReconnectBaseline() time.Duration {
	return time.Duration(w.ReconnectBaseline) * time.Second
}

// GetReconnectCeiling returns the WiFi backoff ceiling as a Duration.
func (w WiFiSettings) GetReconnectCeiling() time.Duration {
	return time.Duration(w.ReconnectCeiling) * time.Second
}

// GetConnectTimeout returns the MQTT connect timeout as a Duration.
func (m MQTTSettings) GetConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeout) * time.Second
}

// GetReconnectBaseline returns the MQTT backoff baseline as a Duration.
func (m MQTTSettings) GetReconnectBaseline() time.Duration {
	return time.Duration(m.ReconnectBaseline) * time.Second
}

// GetReconnectCeiling returns the MQTT backoff ceiling as a Duration.
func (m MQTTSettings) GetReconnectCeiling() time.Duration {
	return time.Duration(m.ReconnectCeiling) * time.Second
}

// GetKeepAlive returns the MQTT keepalive interval as a Duration.
func (m MQTTSettings) GetKeepAlive() time.Duration {
	return time.Duration(m.KeepAlive) * time.Second
}

// GetPublishTimeout returns the MQTT publish timeout as a Duration.
func (m MQTTSettings) GetPublishTimeout() time.Duration {
	return time.Duration(m.PublishTimeout) * time.Second
}

// GetStatusInterval returns the relay status-poll interval as a Duration.
func (r RelayConfig) GetStatusInterval() time.Duration {
	return time.Duration(r.StatusInterval) * time.Second
}
