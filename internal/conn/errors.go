package conn

import "errors"

// Domain-specific errors for connection management.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotEnabled is returned when publishing through a disabled manager.
	ErrNotEnabled = errors.New("conn: manager not enabled")

	// ErrNotConnected is returned when a transport operation requires a
	// live connection.
	ErrNotConnected = errors.New("conn: not connected")

	// ErrInvalidConfig is returned by SetCredentials/SetBrokerConfig when
	// a field is empty or exceeds its length bound.
	ErrInvalidConfig = errors.New("conn: invalid configuration")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("conn: publish failed")

	// ErrPayloadTooLarge is returned when a payload exceeds the transport
	// buffer. Retrying cannot fix a size violation.
	ErrPayloadTooLarge = errors.New("conn: payload too large")
)
