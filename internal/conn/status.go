package conn

// Status is the connection state of a managed link.
//
// Exactly one Status exists per manager. It is mutated only inside
// Enable/Disable/Handle, under the manager's mutex.
type Status int

const (
	// StatusDisabled means the link is administratively off.
	StatusDisabled Status = iota

	// StatusDisconnected means the link is enabled but not connected.
	StatusDisconnected

	// StatusConnecting means a connection attempt is in flight.
	StatusConnecting

	// StatusConnected means the link is up.
	StatusConnected

	// StatusFailed means the link cannot proceed: missing configuration,
	// a lost prerequisite, or the reconnect attempt ceiling was reached.
	StatusFailed
)

// String returns the lower-case state name used in the status JSON surface.
func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
