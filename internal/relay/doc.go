// Package relay implements the serial link between the primary grind
// controller and a dedicated network relay board.
//
// The wire protocol is newline-terminated JSON, one frame per line, capped
// at 512 bytes. The primary side (Client) forwards session records with
// {"cmd":"pub","data":{...}} and polls connectivity with {"cmd":"status"};
// the board side (Server) answers with {"status":"ok","wifi":...,
// "mqtt":...,"ip":...} and pushes the same frame unsolicited when a link
// transitions.
//
// Both ends assemble frames on a dedicated reader goroutine and are driven
// by non-blocking Handle calls from the owning daemon's tick loop, so a
// stalled serial device can never stall the grind pipeline.
//
// Console is the board's operator command surface (wifi/mqtt/status/reset),
// fed from the maintenance serial line or stdin.
package relay
