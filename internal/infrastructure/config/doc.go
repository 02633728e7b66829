// Package config provides configuration loading for Grindlink.
//
// Configuration is loaded from a YAML file with hardcoded defaults and
// environment variable overrides (GRINDLINK_* pattern). The defaults carry
// the timing constants of the original grinder controller: 2 Hz network
// tick, 10s connect timeouts, 5s-30s exponential reconnect backoff, a
// 10-slot publish queue with 3 retries per message.
//
// Credentials are deliberately absent from this package: the WiFi and MQTT
// credentials are operator-provisioned at runtime and persisted in the
// preferences store (see internal/infrastructure/prefs), exactly as the
// controller kept them in NVS flash rather than in firmware configuration.
package config
