package session

import (
	"encoding/json"
	"fmt"
)

// Mode is how the grind target was specified.
type Mode uint8

const (
	// ModeWeight grinds to a target weight in grams.
	ModeWeight Mode = iota

	// ModeTime grinds for a target duration.
	ModeTime
)

func (m Mode) String() string {
	switch m {
	case ModeWeight:
		return "weight"
	case ModeTime:
		return "time"
	default:
		return "unknown"
	}
}

// TerminationReason is why a grind session ended.
type TerminationReason uint8

const (
	TerminationCompleted TerminationReason = iota
	TerminationTimeout
	TerminationOvershoot
	TerminationMaxPulses
	TerminationUnknown
)

func (r TerminationReason) String() string {
	switch r {
	case TerminationCompleted:
		return "completed"
	case TerminationTimeout:
		return "timeout"
	case TerminationOvershoot:
		return "overshoot"
	case TerminationMaxPulses:
		return "max_pulses"
	default:
		return "unknown"
	}
}

// ControllerSnapshot captures the grind controller's tuning parameters at
// session end, for offline analysis of dosing accuracy.
type ControllerSnapshot struct {
	MotorStopOffset   float64
	LatencyCoastRatio float64
	FlowRateThreshold float64
}

// Session is one completed grind session. Instances are produced by the
// grind pipeline and serialised here for MQTT publishing.
type Session struct {
	SessionID uint32
	Timestamp int64

	DurationMS    uint32
	MotorOnTimeMS uint32

	Mode      Mode
	ProfileID uint8

	// Weight-mode fields (grams).
	TargetWeight float64
	FinalWeight  float64
	StartWeight  float64
	ErrorGrams   float64
	Tolerance    float64

	// Time-mode fields.
	TargetTimeMS uint32
	TimeErrorMS  int32

	PulseCount       uint8
	MaxPulseAttempts uint8

	Termination  TerminationReason
	ResultStatus string

	Controller ControllerSnapshot
}

// sessionJSON is the wire shape of a session record. Weight fields are
// rendered as raw fixed-decimal numbers (json.Number), matching the record
// format consumers already parse.
type sessionJSON struct {
	DeviceID  string `json:"device_id"`
	SessionID uint32 `json:"session_id"`
	Timestamp int64  `json:"timestamp"`

	DurationMS    uint32 `json:"duration_ms"`
	MotorOnTimeMS uint32 `json:"motor_on_time_ms"`

	Mode      string `json:"mode"`
	ProfileID uint8  `json:"profile_id"`

	TargetWeight json.Number `json:"target_weight,omitempty"`
	FinalWeight  json.Number `json:"final_weight"`
	StartWeight  json.Number `json:"start_weight,omitempty"`
	ErrorGrams   json.Number `json:"error_grams,omitempty"`
	Tolerance    json.Number `json:"tolerance,omitempty"`

	TargetTimeMS uint32 `json:"target_time_ms,omitempty"`
	TimeErrorMS  int32  `json:"time_error_ms,omitempty"`

	PulseCount       uint8 `json:"pulse_count"`
	MaxPulseAttempts uint8 `json:"max_pulse_attempts"`

	TerminationReason string `json:"termination_reason"`
	ResultStatus      string `json:"result_status"`

	Controller controllerJSON `json:"controller"`
}

type controllerJSON struct {
	MotorStopOffset   json.Number `json:"motor_stop_offset"`
	LatencyCoastRatio json.Number `json:"latency_coast_ratio"`
	FlowRateThreshold json.Number `json:"flow_rate_threshold"`
}

// fixed renders a float with the given number of decimal places as a raw
// JSON number.
func fixed(v float64, places int) json.Number {
	return json.Number(fmt.Sprintf("%.*f", places, v))
}

// MarshalJSON renders the session record. Weight-mode sessions carry target
// weight, error and tolerance; time-mode sessions carry the target time and
// time error, with final and start weight kept for reference.
func (s *Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		DeviceID:          DeviceID(),
		SessionID:         s.SessionID,
		Timestamp:         s.Timestamp,
		DurationMS:        s.DurationMS,
		MotorOnTimeMS:     s.MotorOnTimeMS,
		Mode:              s.Mode.String(),
		ProfileID:         s.ProfileID,
		FinalWeight:       fixed(s.FinalWeight, 1),
		PulseCount:        s.PulseCount,
		MaxPulseAttempts:  s.MaxPulseAttempts,
		TerminationReason: s.Termination.String(),
		ResultStatus:      s.ResultStatus,
		Controller: controllerJSON{
			MotorStopOffset:   fixed(s.Controller.MotorStopOffset, 2),
			LatencyCoastRatio: fixed(s.Controller.LatencyCoastRatio, 3),
			FlowRateThreshold: fixed(s.Controller.FlowRateThreshold, 2),
		},
	}

	switch s.Mode {
	case ModeWeight:
		out.TargetWeight = fixed(s.TargetWeight, 1)
		out.ErrorGrams = fixed(s.ErrorGrams, 2)
		out.Tolerance = fixed(s.Tolerance, 1)
	case ModeTime:
		out.TargetTimeMS = s.TargetTimeMS
		out.TimeErrorMS = s.TimeErrorMS
		out.StartWeight = fixed(s.StartWeight, 1)
	}

	return json.Marshal(out)
}
