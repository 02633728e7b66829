package conn

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/grindwise/grindlink-core/internal/infrastructure/config"
	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
)

// Transport constants.
const (
	// maxPayloadSize is the transport buffer bound. Payloads above this are
	// a permanent failure for that message.
	maxPayloadSize = 2048

	// disconnectQuiesce is the time allowed for in-flight packets on a
	// graceful disconnect, in milliseconds.
	disconnectQuiesce = 250

	// qosFireAndForget: session telemetry uses QoS 0; at-least-once
	// delivery is provided by the publish queue, not the MQTT protocol.
	qosFireAndForget = 0
)

// PahoTransport is the production BrokerTransport over paho.mqtt.golang.
//
// The paho client's own auto-reconnect and retry machinery is disabled:
// reconnection policy belongs to the Manager, which polls IsConnected and
// applies its exponential backoff. Each Connect builds a fresh client so a
// half-open session from a failed attempt is never reused.
type PahoTransport struct {
	mu     sync.Mutex
	client pahomqtt.Client

	deviceID       string
	cfg            func() BrokerConfig
	keepAlive      time.Duration
	connectTimeout time.Duration
	publishTimeout time.Duration
	log            *logging.Logger
}

// NewPahoTransport creates the broker transport. cfg is read at every
// connection attempt so configuration changes are picked up on the next
// reconnect.
func NewPahoTransport(deviceID string, cfg func() BrokerConfig, settings config.MQTTSettings, log *logging.Logger) *PahoTransport {
	return &PahoTransport{
		deviceID:       deviceID,
		cfg:            cfg,
		keepAlive:      settings.GetKeepAlive(),
		connectTimeout: settings.GetConnectTimeout(),
		publishTimeout: settings.GetPublishTimeout(),
		log:            log.With("component", "paho"),
	}
}

// Connect begins a broker connection attempt. The attempt proceeds
// asynchronously; the manager observes completion by polling IsConnected.
func (t *PahoTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		t.client.Disconnect(0)
		t.client = nil
	}

	cfg := t.cfg()
	willTopic := Topics{}.DeviceStatus(t.deviceID)

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(t.deviceID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetKeepAlive(t.keepAlive)
	opts.SetConnectTimeout(t.connectTimeout)
	opts.SetWill(willTopic, StatusOffline, qosFireAndForget, true)

	// Nothing here subscribes to inbound topics, but the client API
	// requires a message handler.
	opts.SetDefaultPublishHandler(func(pahomqtt.Client, pahomqtt.Message) {})

	t.log.Info("dialling broker", "host", cfg.Host, "port", cfg.Port)

	client := pahomqtt.NewClient(opts)
	client.Connect()
	t.client = client
	return nil
}

// IsConnected reports whether the broker session is up.
func (t *PahoTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && t.client.IsConnected()
}

// Teardown abandons the session. A live session first publishes the
// retained offline status: a clean DISCONNECT suppresses the last will, so
// without this the retained status would stay "online" forever.
func (t *PahoTransport) Teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return
	}

	if t.client.IsConnected() {
		token := t.client.Publish(Topics{}.DeviceStatus(t.deviceID), qosFireAndForget, true, StatusOffline)
		token.WaitTimeout(t.publishTimeout)
	}

	t.client.Disconnect(disconnectQuiesce)
	t.client = nil
}

// Publish sends one message with a bounded wait for the client to hand it
// to the network layer.
func (t *PahoTransport) Publish(topic string, payload []byte, retained bool) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}

	token := client.Publish(topic, qosFireAndForget, retained, payload)
	if !token.WaitTimeout(t.publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, t.publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}
