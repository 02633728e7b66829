// Package influxdb provides the optional session-metric mirror.
//
// When enabled, completed grind sessions and link transitions are mirrored
// into InfluxDB alongside the authoritative MQTT publish, so dosing
// accuracy and connectivity uptime can be charted without an MQTT
// consumer in the loop.
//
// The mirror is strictly best-effort: writes are batched and asynchronous,
// failures surface only through the error callback, and a dead InfluxDB
// never blocks or fails the publish path.
package influxdb
