package conn

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/grindwise/grindlink-core/internal/infrastructure/config"
	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
	"github.com/grindwise/grindlink-core/internal/infrastructure/prefs"
	"github.com/grindwise/grindlink-core/internal/session"
)

// Broker configuration bounds.
const (
	maxBrokerLength       = 128
	maxUsernameLength     = 64
	maxMQTTPasswordLength = 64

	// DefaultBrokerPort is the plain-TCP MQTT port.
	DefaultBrokerPort = 1883
)

// Preferences keys for MQTT state.
const (
	keyMQTTBroker   = "mqtt_broker"
	keyMQTTPort     = "mqtt_port"
	keyMQTTUsername = "mqtt_username"
	keyMQTTPassword = "mqtt_password"
	keyMQTTEnabled  = "mqtt_enabled"
)

// maxDrainPerTick bounds how many queued publishes one Handle call may
// attempt, so a deep queue cannot monopolise the scheduler slice.
const maxDrainPerTick = 3

// retainSessions: session records are published retained so late
// subscribers see the most recent grind.
const retainSessions = true

// BrokerConfig is the MQTT endpoint descriptor, persisted in the
// preferences store.
type BrokerConfig struct {
	Host     string
	Port     uint16
	Username string
	Password string
}

// Valid reports whether the config describes a reachable endpoint.
func (c BrokerConfig) Valid() bool {
	return c.Host != "" && c.Port != 0
}

// BrokerTransport is the broker session capability behind the MQTT manager:
// the generic Link plus fire-and-forget publishing.
type BrokerTransport interface {
	Link

	// Publish sends one message. It returns ErrNotConnected when the
	// session is down, ErrPayloadTooLarge when the payload exceeds the
	// transport buffer, or a wrapped ErrPublishFailed otherwise.
	Publish(topic string, payload []byte, retained bool) error
}

// PublishResult is the outcome of a publish request.
type PublishResult int

const (
	// ResultSuccess: the message was handed to the broker.
	ResultSuccess PublishResult = iota

	// ResultQueued: the message is pending in the retry queue.
	ResultQueued

	// ResultRejected: the queue is full or the message was dropped after
	// exhausting its retry budget. The caller decides what to do next;
	// this engine never blocks.
	ResultRejected
)

func (r PublishResult) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultQueued:
		return "queued"
	case ResultRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// PublishCallback is notified of every publish outcome, including the
// interim ResultQueued when a message enters the retry queue; a queued
// session is reported a second time with its final ResultSuccess or, after
// retry exhaustion during a drain, ResultRejected.
type PublishCallback func(sessionID uint32, result PublishResult)

// MQTTManager owns the broker session: the shared connection state machine
// gated on the WiFi link, plus the bounded publish queue that gives session
// telemetry at-least-once delivery across transient failures.
//
// Unlike WiFi, the MQTT manager retries indefinitely as long as its
// prerequisite link stays up.
type MQTTManager struct {
	*Manager

	transport  BrokerTransport
	store      *prefs.Store
	log        *logging.Logger
	deviceID   string
	queue      *publishQueue
	maxRetries int

	cfgMu sync.Mutex
	cfg   BrokerConfig

	cbMu      sync.Mutex
	publishCB PublishCallback
}

// NewMQTTManager creates the MQTT-side manager. wifiConnected is the
// injected read-only prerequisite: while it reports false, Handle never
// attempts a broker connection.
func NewMQTTManager(transport BrokerTransport, store *prefs.Store, settings config.MQTTSettings, deviceID string, wifiConnected func() bool, log *logging.Logger) *MQTTManager {
	m := &MQTTManager{
		transport:  transport,
		store:      store,
		log:        log.With("link", "mqtt"),
		deviceID:   deviceID,
		queue:      newPublishQueue(settings.QueueCapacity),
		maxRetries: settings.MaxPublishRetries,
		cfg:        BrokerConfig{Port: DefaultBrokerPort},
	}

	m.Manager = NewManager(transport, store, Options{
		Name:           "mqtt",
		EnabledKey:     keyMQTTEnabled,
		ConnectTimeout: settings.GetConnectTimeout(),
		Backoff: Backoff{
			Baseline: settings.GetReconnectBaseline(),
			Ceiling:  settings.GetReconnectCeiling(),
		},
		HasConfig:       m.HasBrokerConfig,
		Prereq:          wifiConnected,
		OnConnected:     m.onConnected,
		OnConnectedTick: m.drainQueue,
		OnDisable:       m.discardQueue,
		Logger:          log,
	})

	return m
}

// Init loads persisted broker configuration, then runs the generic manager
// Init. If WiFi is not yet up the manager lands in StatusFailed and the
// state machine picks the connection up once the prerequisite holds.
func (m *MQTTManager) Init() {
	if m.store != nil {
		m.cfgMu.Lock()
		m.cfg = BrokerConfig{
			Host:     m.store.GetString(keyMQTTBroker, ""),
			Port:     m.store.GetUint16(keyMQTTPort, DefaultBrokerPort),
			Username: m.store.GetString(keyMQTTUsername, ""),
			Password: m.store.GetString(keyMQTTPassword, ""),
		}
		m.cfgMu.Unlock()
	}
	m.Manager.Init()
}

// SetBrokerConfig validates, persists, and applies a new broker endpoint.
//
// Like SetCredentials it does not trigger reconnection by itself.
func (m *MQTTManager) SetBrokerConfig(host string, port uint16, username, password string) error {
	if host == "" {
		return fmt.Errorf("%w: empty broker host", ErrInvalidConfig)
	}
	if port == 0 {
		return fmt.Errorf("%w: port must be non-zero", ErrInvalidConfig)
	}
	if len(host) > maxBrokerLength {
		return fmt.Errorf("%w: broker host exceeds %d bytes", ErrInvalidConfig, maxBrokerLength)
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("%w: username exceeds %d bytes", ErrInvalidConfig, maxUsernameLength)
	}
	if len(password) > maxMQTTPasswordLength {
		return fmt.Errorf("%w: password exceeds %d bytes", ErrInvalidConfig, maxMQTTPasswordLength)
	}

	m.log.Info("setting broker", "host", host, "port", port)

	m.cfgMu.Lock()
	m.cfg = BrokerConfig{Host: host, Port: port, Username: username, Password: password}
	m.cfgMu.Unlock()

	if m.store != nil {
		if err := m.store.PutString(keyMQTTBroker, host); err != nil {
			return err
		}
		if err := m.store.PutUint16(keyMQTTPort, port); err != nil {
			return err
		}
		if err := m.store.PutString(keyMQTTUsername, username); err != nil {
			return err
		}
		if err := m.store.PutString(keyMQTTPassword, password); err != nil {
			return err
		}
	}
	return nil
}

// ClearBrokerConfig removes the stored endpoint and disables the link if it
// was enabled.
func (m *MQTTManager) ClearBrokerConfig() {
	m.log.Info("clearing broker configuration")

	m.cfgMu.Lock()
	m.cfg = BrokerConfig{Port: DefaultBrokerPort}
	m.cfgMu.Unlock()

	if m.store != nil {
		for _, key := range []string{keyMQTTBroker, keyMQTTPort, keyMQTTUsername, keyMQTTPassword} {
			if err := m.store.Remove(key); err != nil {
				m.log.Error("removing broker preference", "key", key, "error", err)
			}
		}
	}

	if m.Enabled() {
		m.Disable()
	}
}

// HasBrokerConfig reports whether a broker endpoint is configured.
func (m *MQTTManager) HasBrokerConfig() bool {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	return m.cfg.Valid()
}

// BrokerConfig returns a copy of the current endpoint descriptor.
func (m *MQTTManager) BrokerConfig() BrokerConfig {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	return m.cfg
}

// DeviceID returns the identifier used in topics and as the client ID.
func (m *MQTTManager) DeviceID() string {
	return m.deviceID
}

// PendingPublishes returns the number of queued messages.
func (m *MQTTManager) PendingPublishes() int {
	return m.queue.size()
}

// SetPublishCallback replaces the publish-outcome observer.
func (m *MQTTManager) SetPublishCallback(cb PublishCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.publishCB = cb
}

// PublishSession serialises a grind session and publishes it to the
// retained session topic. While disconnected, or when a live attempt
// fails, the message is queued for retry; a full queue rejects the request
// synchronously. The call never blocks the grind pipeline.
func (m *MQTTManager) PublishSession(s *session.Session) (PublishResult, error) {
	if s == nil {
		return ResultRejected, fmt.Errorf("%w: nil session", ErrPublishFailed)
	}
	if !m.Enabled() {
		return ResultRejected, ErrNotEnabled
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return ResultRejected, fmt.Errorf("serialising session %d: %w", s.SessionID, err)
	}

	m.log.Info("publishing session",
		"session_id", s.SessionID,
		"payload_bytes", len(payload),
	)
	return m.publish(s.SessionID, payload), nil
}

// PublishRaw publishes an already-serialised session record. Used by the
// relay server, which forwards payloads without reparsing them into the
// full session type.
func (m *MQTTManager) PublishRaw(sessionID uint32, payload []byte) (PublishResult, error) {
	if !m.Enabled() {
		return ResultRejected, ErrNotEnabled
	}
	return m.publish(sessionID, payload), nil
}

func (m *MQTTManager) publish(sessionID uint32, payload []byte) PublishResult {
	topic := Topics{}.Session(m.deviceID, sessionID)

	if m.Status() == StatusConnected {
		err := m.transport.Publish(topic, payload, retainSessions)
		if err == nil {
			m.notifyPublish(sessionID, ResultSuccess)
			return ResultSuccess
		}
		m.log.Warn("immediate publish failed", "session_id", sessionID, "error", err)
	}

	if m.queue.push(pendingPublish{sessionID: sessionID, topic: topic, payload: payload}) {
		m.log.Info("queued session for retry", "session_id", sessionID, "pending", m.queue.size())
		m.notifyPublish(sessionID, ResultQueued)
		return ResultQueued
	}

	m.log.Warn("publish queue full, rejecting session", "session_id", sessionID)
	m.notifyPublish(sessionID, ResultRejected)
	return ResultRejected
}

// onConnected publishes the retained online status and flushes pending work.
func (m *MQTTManager) onConnected() {
	statusTopic := Topics{}.DeviceStatus(m.deviceID)
	if err := m.transport.Publish(statusTopic, []byte(StatusOnline), true); err != nil {
		m.log.Warn("publishing online status", "error", err)
	}
	m.drainQueue()
}

// drainQueue retries queued publishes, at most maxDrainPerTick per call.
// On failure a message's retry count is incremented; at the ceiling it is
// dropped and reported, otherwise it moves to the back of the queue.
func (m *MQTTManager) drainQueue() {
	// Bound this tick by the depth at entry so a requeued failure is not
	// retried again until the next tick.
	limit := m.queue.size()
	if limit > maxDrainPerTick {
		limit = maxDrainPerTick
	}

	for processed := 0; processed < limit; processed++ {
		pending, ok := m.queue.peek()
		if !ok {
			return
		}

		err := m.transport.Publish(pending.topic, pending.payload, retainSessions)
		if err == nil {
			m.queue.pop()
			m.log.Info("queued publish succeeded", "session_id", pending.sessionID)
			m.notifyPublish(pending.sessionID, ResultSuccess)
			continue
		}

		pending.retryCount++

		if errors.Is(err, ErrPayloadTooLarge) {
			// A size violation cannot succeed on retry. It still consumes
			// retry budget like a transient failure (the original firmware
			// does not distinguish the two); the distinct log line is the
			// operator's signal.
			m.log.Warn("queued payload exceeds transport buffer",
				"session_id", pending.sessionID,
				"bytes", len(pending.payload),
			)
		}

		if pending.retryCount >= m.maxRetries {
			m.queue.pop()
			m.log.Warn("dropping publish after max retries",
				"session_id", pending.sessionID,
				"retries", pending.retryCount,
			)
			m.notifyPublish(pending.sessionID, ResultRejected)
		} else {
			m.log.Info("publish retry failed, requeueing",
				"session_id", pending.sessionID,
				"retry", pending.retryCount,
				"error", err,
			)
			m.queue.requeue(pending)
		}
	}
}

// discardQueue drops all pending publishes. Runs on Disable: losing queued
// messages on an explicit disable is documented behaviour, not a bug.
func (m *MQTTManager) discardQueue() {
	if n := m.queue.size(); n > 0 {
		m.log.Warn("discarding pending publishes", "count", n)
	}
	m.queue.clear()
}

func (m *MQTTManager) notifyPublish(sessionID uint32, result PublishResult) {
	m.cbMu.Lock()
	cb := m.publishCB
	m.cbMu.Unlock()
	if cb != nil {
		cb(sessionID, result)
	}
}
