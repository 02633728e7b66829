// Package session defines the grind session record and its wire
// serialisation.
//
// A Session captures one completed grind: timing, weights, pulse counts and
// the controller tuning that produced the result. MarshalJSON renders the
// record with mode-dependent fields (weight-mode sessions carry target
// weight and dosing error, time-mode sessions carry the target duration) and
// fixed-decimal weight values so downstream consumers see a stable format.
//
// The package also owns the device identity: DeviceID derives a stable
// "grinder-<mac>" identifier used in MQTT topics and session payloads.
package session
