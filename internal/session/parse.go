package session

import (
	"encoding/json"
	"fmt"
)

// ModeFromString maps a wire mode name back to its Mode.
func ModeFromString(s string) Mode {
	switch s {
	case "weight":
		return ModeWeight
	case "time":
		return ModeTime
	default:
		return ModeWeight
	}
}

// TerminationFromString maps a wire termination reason back to its value.
func TerminationFromString(s string) TerminationReason {
	switch s {
	case "completed":
		return TerminationCompleted
	case "timeout":
		return TerminationTimeout
	case "overshoot":
		return TerminationOvershoot
	case "max_pulses":
		return TerminationMaxPulses
	default:
		return TerminationUnknown
	}
}

// ParseRecord decodes a serialised session record back into a Session.
// Used on the receiving side of the relay link, where records arrive as raw
// payloads. The embedded device_id is not carried over; topic routing owns
// device identity.
func ParseRecord(data []byte) (*Session, error) {
	var w sessionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding session record: %w", err)
	}

	s := &Session{
		SessionID:        w.SessionID,
		Timestamp:        w.Timestamp,
		DurationMS:       w.DurationMS,
		MotorOnTimeMS:    w.MotorOnTimeMS,
		Mode:             ModeFromString(w.Mode),
		ProfileID:        w.ProfileID,
		TargetTimeMS:     w.TargetTimeMS,
		TimeErrorMS:      w.TimeErrorMS,
		PulseCount:       w.PulseCount,
		MaxPulseAttempts: w.MaxPulseAttempts,
		Termination:      TerminationFromString(w.TerminationReason),
		ResultStatus:     w.ResultStatus,
	}

	s.TargetWeight = numberOrZero(w.TargetWeight)
	s.FinalWeight = numberOrZero(w.FinalWeight)
	s.StartWeight = numberOrZero(w.StartWeight)
	s.ErrorGrams = numberOrZero(w.ErrorGrams)
	s.Tolerance = numberOrZero(w.Tolerance)
	s.Controller = ControllerSnapshot{
		MotorStopOffset:   numberOrZero(w.Controller.MotorStopOffset),
		LatencyCoastRatio: numberOrZero(w.Controller.LatencyCoastRatio),
		FlowRateThreshold: numberOrZero(w.Controller.FlowRateThreshold),
	}

	return s, nil
}

func numberOrZero(n json.Number) float64 {
	if n == "" {
		return 0
	}
	v, err := n.Float64()
	if err != nil {
		return 0
	}
	return v
}
