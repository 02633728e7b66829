// Package conn implements the connection-state management shared by the
// WiFi and MQTT links, and the bounded publish queue that carries grind
// session telemetry through transient network failures.
//
// # State machine
//
// Both links share one Manager driving the state set
// {disabled, disconnected, connecting, connected, failed}:
//
//	Disabled --Enable--> [config + prereq check]
//	    ok   -> Connecting
//	    fail -> Failed
//	Connecting --tick--> Connected | (timeout) Disconnected
//	Connected  --tick--> Disconnected on loss
//	Disconnected/Failed --tick--> retry once the backoff interval elapses
//	Disable (any state) -> Disabled
//
// Reconnect delays double from a baseline (5s) to a ceiling (30s) and reset
// on success. The WiFi manager gives up into Failed after a fixed attempt
// ceiling; the MQTT manager retries indefinitely while the WiFi link is up.
//
// # Driving model
//
// A single periodic driver (~2 Hz) calls Handle on each manager in
// dependency order, WiFi before MQTT. All transport operations are
// non-blocking and polled; one Handle call performs at most one connection
// attempt and drains at most three queued publishes, so the driver's slice
// stays bounded. Connection failures are never fatal: the design favours
// degraded-but-alive operation over crashing.
//
// # Publish queue
//
// PublishSession attempts an immediate send while connected and otherwise
// queues, up to a fixed capacity; a full queue rejects the request
// synchronously so the grind pipeline is never blocked. A queued message
// that fails a retry moves to the back of the queue, and is dropped after
// exhausting its retry budget. Disabling the MQTT link discards the queue.
package conn
