package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/grindwise/grindlink-core/internal/session"
)

// WriteSessionMetrics mirrors one grind session into the grind_session
// measurement.
//
// Tags carry the low-cardinality dimensions (device, mode, termination);
// the dosing numbers go in as fields. The write is non-blocking; data is
// batched and sent asynchronously.
func (c *Client) WriteSessionMetrics(deviceID string, s *session.Session) {
	if !c.IsConnected() || s == nil {
		return
	}

	fields := map[string]interface{}{
		"session_id":       int64(s.SessionID),
		"duration_ms":      int64(s.DurationMS),
		"motor_on_time_ms": int64(s.MotorOnTimeMS),
		"final_weight":     s.FinalWeight,
		"pulse_count":      int64(s.PulseCount),
	}

	switch s.Mode {
	case session.ModeWeight:
		fields["target_weight"] = s.TargetWeight
		fields["error_grams"] = s.ErrorGrams
	case session.ModeTime:
		fields["target_time_ms"] = int64(s.TargetTimeMS)
		fields["time_error_ms"] = int64(s.TimeErrorMS)
	}

	ts := time.Now()
	if s.Timestamp > 0 {
		ts = time.Unix(s.Timestamp, 0)
	}

	point := write.NewPoint(
		"grind_session",
		map[string]string{
			"device_id":          deviceID,
			"mode":               s.Mode.String(),
			"termination_reason": s.Termination.String(),
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteLinkStatus records a connectivity transition for the named link.
// Used by the daemon's status callbacks to chart uptime.
func (c *Client) WriteLinkStatus(deviceID, link, status string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"link_status",
		map[string]string{
			"device_id": deviceID,
			"link":      link,
		},
		map[string]interface{}{
			"status": status,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
