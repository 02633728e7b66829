package influxdb

import "errors"

// Sentinel errors for InfluxDB operations, checkable with errors.Is().
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed indicates a write operation failed.
	// Most write errors are delivered asynchronously via the error callback.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled indicates the session-metric mirror is disabled in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
