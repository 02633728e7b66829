package conn

import "fmt"

// Topic scheme for grinder telemetry. All topics are rooted at the device:
//
//	grinder/{device_id}/sessions/{session_id}   retained session records
//	grinder/{device_id}/status                  retained liveness ("online"/"offline")
const topicPrefix = "grinder"

// Liveness payloads. The offline payload doubles as the broker-side last
// will configured at connect time.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Topics provides builders for grinder MQTT topics.
// Using these helpers keeps topic naming bit-exact across the codebase.
type Topics struct{}

// Session returns the retained topic for one grind-session record.
//
// Example: grinder/grinder-a1b2c3d4e5f6/sessions/42
func (Topics) Session(deviceID string, sessionID uint32) string {
	return fmt.Sprintf("%s/%s/sessions/%d", topicPrefix, deviceID, sessionID)
}

// DeviceStatus returns the retained liveness topic for a device.
//
// Example: grinder/grinder-a1b2c3d4e5f6/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", topicPrefix, deviceID)
}
