package conn

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/grindwise/grindlink-core/internal/infrastructure/config"
	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
	"github.com/grindwise/grindlink-core/internal/session"
)

// ============================================================================
// Test fixtures
// ============================================================================

type publishedMsg struct {
	topic    string
	payload  string
	retained bool
}

// fakeBroker is a scriptable BrokerTransport.
type fakeBroker struct {
	connected     bool
	connectErr    error
	publishErr    error
	failOnceTopic string // the next publish to this topic fails, then it clears
	published     []publishedMsg

	// When gate is non-nil, a publish to slowTopic signals publishEntered
	// and stalls until the gate is closed. Used to hold the transport busy
	// mid-publish in concurrency tests.
	slowTopic      string
	publishEntered chan struct{}
	gate           chan struct{}
}

func (b *fakeBroker) Connect() error { return b.connectErr }

func (b *fakeBroker) IsConnected() bool { return b.connected }

func (b *fakeBroker) Teardown() { b.connected = false }

var _ BrokerTransport = (*fakeBroker)(nil)

func (b *fakeBroker) Publish(topic string, payload []byte, retained bool) error {
	if b.gate != nil && topic == b.slowTopic {
		b.publishEntered <- struct{}{}
		<-b.gate
	}
	if b.publishErr != nil {
		return b.publishErr
	}
	if topic == b.failOnceTopic {
		b.failOnceTopic = ""
		return fmt.Errorf("%w: broker unavailable", ErrPublishFailed)
	}
	b.published = append(b.published, publishedMsg{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func testMQTTSettings() config.MQTTSettings {
	return config.MQTTSettings{
		ConnectTimeout:    10,
		ReconnectBaseline: 5,
		ReconnectCeiling:  30,
		QueueCapacity:     10,
		MaxPublishRetries: 3,
	}
}

func newTestMQTTManager(t *testing.T, broker *fakeBroker, wifiUp *bool) (*MQTTManager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	m := NewMQTTManager(broker, nil, testMQTTSettings(), "grinder-test",
		func() bool { return *wifiUp }, logging.Default())
	m.Manager.now = clock.Now
	if err := m.SetBrokerConfig("broker.local", 1883, "", ""); err != nil {
		t.Fatalf("SetBrokerConfig() error = %v", err)
	}
	return m, clock
}

// connectBroker enables the manager and walks it to connected.
func connectBroker(t *testing.T, m *MQTTManager, broker *fakeBroker) {
	t.Helper()
	m.Enable()
	broker.connected = true
	m.Handle()
	if got := m.Status(); got != StatusConnected {
		t.Fatalf("Status() = %v, want %v", got, StatusConnected)
	}
}

func testSession(id uint32) *session.Session {
	return &session.Session{
		SessionID:    id,
		Mode:         session.ModeWeight,
		TargetWeight: 18.0,
		FinalWeight:  18.1,
		Termination:  session.TerminationCompleted,
		ResultStatus: "ok",
	}
}

// ============================================================================
// Publishing
// ============================================================================

func TestPublishSessionWhileConnected(t *testing.T) {
	broker := &fakeBroker{}
	wifiUp := true
	m, _ := newTestMQTTManager(t, broker, &wifiUp)
	connectBroker(t, m, broker)

	result, err := m.PublishSession(testSession(42))
	if err != nil {
		t.Fatalf("PublishSession() error = %v", err)
	}
	if result != ResultSuccess {
		t.Fatalf("PublishSession() = %v, want %v", result, ResultSuccess)
	}

	// First publish after connect is the retained online status, then the
	// session record on its own retained topic.
	if len(broker.published) != 2 {
		t.Fatalf("published %d messages, want 2", len(broker.published))
	}
	status := broker.published[0]
	if status.topic != "grinder/grinder-test/status" || status.payload != StatusOnline || !status.retained {
		t.Errorf("online status = %+v", status)
	}
	rec := broker.published[1]
	if rec.topic != "grinder/grinder-test/sessions/42" {
		t.Errorf("session topic = %q, want grinder/grinder-test/sessions/42", rec.topic)
	}
	if !rec.retained {
		t.Error("session record not retained")
	}
	if !strings.Contains(rec.payload, `"session_id":42`) {
		t.Errorf("session payload missing session_id: %s", rec.payload)
	}
	if m.PendingPublishes() != 0 {
		t.Errorf("PendingPublishes() = %d, want 0", m.PendingPublishes())
	}
}

func TestPublishSessionWhileDisconnectedQueues(t *testing.T) {
	broker := &fakeBroker{connectErr: errors.New("refused")}
	wifiUp := true
	m, _ := newTestMQTTManager(t, broker, &wifiUp)
	m.Enable()

	result, err := m.PublishSession(testSession(1))
	if err != nil {
		t.Fatalf("PublishSession() error = %v", err)
	}
	if result != ResultQueued {
		t.Errorf("PublishSession() = %v, want %v", result, ResultQueued)
	}
	if m.PendingPublishes() != 1 {
		t.Errorf("PendingPublishes() = %d, want 1", m.PendingPublishes())
	}
}

func TestPublishSessionNotEnabled(t *testing.T) {
	broker := &fakeBroker{}
	wifiUp := true
	m, _ := newTestMQTTManager(t, broker, &wifiUp)

	result, err := m.PublishSession(testSession(1))
	if !errors.Is(err, ErrNotEnabled) {
		t.Errorf("PublishSession() error = %v, want ErrNotEnabled", err)
	}
	if result != ResultRejected {
		t.Errorf("PublishSession() = %v, want %v", result, ResultRejected)
	}
}

func TestPublishSessionQueueFull(t *testing.T) {
	broker := &fakeBroker{connectErr: errors.New("refused")}
	wifiUp := true
	m, _ := newTestMQTTManager(t, broker, &wifiUp)
	m.Enable()

	var results []PublishResult
	m.SetPublishCallback(func(_ uint32, r PublishResult) { results = append(results, r) })

	for i := 0; i < 10; i++ {
		if got, _ := m.PublishSession(testSession(uint32(i))); got != ResultQueued {
			t.Fatalf("publish %d = %v, want %v", i, got, ResultQueued)
		}
	}

	got, err := m.PublishSession(testSession(99))
	if err != nil {
		t.Fatalf("PublishSession() error = %v", err)
	}
	if got != ResultRejected {
		t.Errorf("publish over capacity = %v, want %v", got, ResultRejected)
	}
	if m.PendingPublishes() != 10 {
		t.Errorf("PendingPublishes() = %d, want 10", m.PendingPublishes())
	}
	if len(results) != 11 || results[10] != ResultRejected {
		t.Errorf("callback results = %v, want 10 queued then rejected", results)
	}
}

// ============================================================================
// Queue drain
// ============================================================================

func TestDrainQueueOnReconnect(t *testing.T) {
	broker := &fakeBroker{connectErr: errors.New("refused")}
	wifiUp := true
	m, clock := newTestMQTTManager(t, broker, &wifiUp)
	m.Enable()

	for i := uint32(1); i <= 5; i++ {
		m.PublishSession(testSession(i))
	}
	if m.PendingPublishes() != 5 {
		t.Fatalf("PendingPublishes() = %d, want 5", m.PendingPublishes())
	}

	// The broker comes up. One tick past the backoff starts a fresh
	// attempt; the next finds the session established and the connect
	// transition flushes at most three queued records, the tick after
	// that the rest.
	broker.connectErr = nil
	broker.connected = true
	clock.Advance(6 * time.Second)
	m.Handle()
	if got := m.Status(); got != StatusConnecting {
		t.Fatalf("Status() = %v, want %v", got, StatusConnecting)
	}

	m.Handle()
	if got := m.Status(); got != StatusConnected {
		t.Fatalf("Status() = %v, want %v", got, StatusConnected)
	}
	if m.PendingPublishes() != 2 {
		t.Errorf("PendingPublishes() after connect = %d, want 2", m.PendingPublishes())
	}

	m.Handle()
	if m.PendingPublishes() != 0 {
		t.Errorf("PendingPublishes() after second tick = %d, want 0", m.PendingPublishes())
	}

	// Online status plus the five session records, in queue order.
	if len(broker.published) != 6 {
		t.Fatalf("published %d messages, want 6", len(broker.published))
	}
	for i := uint32(1); i <= 5; i++ {
		want := fmt.Sprintf("grinder/grinder-test/sessions/%d", i)
		if broker.published[i].topic != want {
			t.Errorf("publish %d topic = %q, want %q", i, broker.published[i].topic, want)
		}
	}
}

func TestDrainDropsAfterMaxRetries(t *testing.T) {
	broker := &fakeBroker{connectErr: errors.New("refused")}
	wifiUp := true
	m, clock := newTestMQTTManager(t, broker, &wifiUp)
	m.Enable()
	m.PublishSession(testSession(7))

	var results []PublishResult
	m.SetPublishCallback(func(id uint32, r PublishResult) {
		if id == 7 {
			results = append(results, r)
		}
	})

	broker.connectErr = nil
	broker.connected = true
	broker.publishErr = errors.New("broker rejects")

	clock.Advance(6 * time.Second)
	m.Handle() // fresh attempt

	// Connect transition makes retry one; two more ticks exhaust the
	// retry budget.
	m.Handle()
	if m.PendingPublishes() != 1 {
		t.Fatalf("PendingPublishes() after retry 1 = %d, want 1", m.PendingPublishes())
	}
	m.Handle()
	if m.PendingPublishes() != 1 {
		t.Fatalf("PendingPublishes() after retry 2 = %d, want 1", m.PendingPublishes())
	}
	m.Handle()
	if m.PendingPublishes() != 0 {
		t.Errorf("PendingPublishes() after retry 3 = %d, want 0", m.PendingPublishes())
	}

	if len(results) != 1 || results[0] != ResultRejected {
		t.Errorf("callback results = %v, want [rejected]", results)
	}
}

// An oversized payload consumes retry budget like any other failure and is
// dropped at the same ceiling.
func TestDrainOversizedPayloadDropped(t *testing.T) {
	broker := &fakeBroker{connectErr: errors.New("refused")}
	wifiUp := true
	m, clock := newTestMQTTManager(t, broker, &wifiUp)
	m.Enable()
	m.PublishSession(testSession(8))

	broker.connectErr = nil
	broker.connected = true
	broker.publishErr = fmt.Errorf("payload: %w", ErrPayloadTooLarge)

	clock.Advance(6 * time.Second)
	m.Handle() // fresh attempt
	m.Handle() // connected, retry 1
	m.Handle()
	m.Handle()

	if m.PendingPublishes() != 0 {
		t.Errorf("PendingPublishes() = %d, want 0", m.PendingPublishes())
	}
}

// One failing record moves to the back of the queue rather than stalling
// the drain: enqueue 1, 2, 3 with 2 failing once, and the broker observes
// the records in the order 1, 3, 2.
func TestDrainPartialFailureOrdering(t *testing.T) {
	broker := &fakeBroker{}
	wifiUp := true
	m, _ := newTestMQTTManager(t, broker, &wifiUp)

	m.Enable() // still connecting, so everything queues
	for id := uint32(1); id <= 3; id++ {
		result, err := m.PublishRaw(id, []byte(fmt.Sprintf(`{"session_id":%d}`, id)))
		if err != nil {
			t.Fatalf("PublishRaw(%d) error = %v", id, err)
		}
		if result != ResultQueued {
			t.Fatalf("PublishRaw(%d) = %v, want %v", id, result, ResultQueued)
		}
	}

	broker.failOnceTopic = Topics{}.Session("grinder-test", 2)
	broker.connected = true
	m.Handle() // connect transition drains: 1 sent, 2 requeued, 3 sent
	m.Handle() // the requeued 2 goes out

	var got []string
	for _, p := range broker.published {
		if strings.Contains(p.topic, "/sessions/") {
			got = append(got, p.topic)
		}
	}
	want := []string{
		Topics{}.Session("grinder-test", 1),
		Topics{}.Session("grinder-test", 3),
		Topics{}.Session("grinder-test", 2),
	}
	if len(got) != len(want) {
		t.Fatalf("published %d session records, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("publish order[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if m.PendingPublishes() != 0 {
		t.Errorf("PendingPublishes() = %d, want 0", m.PendingPublishes())
	}
}

// A broker that stalls mid-publish inside Handle must not stall concurrent
// publishers: the manager mutex is released before any transport I/O.
func TestHandleBrokerStallDoesNotBlockPublish(t *testing.T) {
	broker := &fakeBroker{
		slowTopic:      Topics{}.DeviceStatus("grinder-test"),
		publishEntered: make(chan struct{}, 1),
		gate:           make(chan struct{}),
	}
	wifiUp := true
	m, _ := newTestMQTTManager(t, broker, &wifiUp)

	m.Enable()
	broker.connected = true

	handleDone := make(chan struct{})
	go func() {
		m.Handle() // transitions to connected, then stalls publishing the online status
		close(handleDone)
	}()
	<-broker.publishEntered

	result := make(chan PublishResult, 1)
	go func() {
		r, _ := m.PublishRaw(9, []byte(`{"session_id":9}`))
		result <- r
	}()

	select {
	case r := <-result:
		if r != ResultSuccess {
			t.Errorf("PublishRaw() = %v, want %v", r, ResultSuccess)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PublishRaw blocked behind the stalled broker publish")
	}

	close(broker.gate)
	<-handleDone
}

// The callback sees the interim queued outcome and then the final one for
// the same session.
func TestPublishCallbackReportsQueuedThenFinal(t *testing.T) {
	broker := &fakeBroker{}
	wifiUp := true
	m, _ := newTestMQTTManager(t, broker, &wifiUp)

	var results []PublishResult
	m.SetPublishCallback(func(id uint32, r PublishResult) {
		if id == 77 {
			results = append(results, r)
		}
	})

	m.Enable()
	if r, _ := m.PublishRaw(77, []byte(`{"session_id":77}`)); r != ResultQueued {
		t.Fatalf("PublishRaw() = %v, want %v", r, ResultQueued)
	}

	broker.connected = true
	m.Handle() // connect transition drains the queue

	want := []PublishResult{ResultQueued, ResultSuccess}
	if len(results) != len(want) {
		t.Fatalf("callback fired %d times, want %d: %v", len(results), len(want), results)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("callback[%d] = %v, want %v", i, results[i], want[i])
		}
	}
}

func TestDisableDiscardsQueue(t *testing.T) {
	broker := &fakeBroker{connectErr: errors.New("refused")}
	wifiUp := true
	m, _ := newTestMQTTManager(t, broker, &wifiUp)
	m.Enable()

	for i := uint32(1); i <= 4; i++ {
		m.PublishSession(testSession(i))
	}

	m.Disable()

	if m.PendingPublishes() != 0 {
		t.Errorf("PendingPublishes() after Disable = %d, want 0", m.PendingPublishes())
	}
	if got := m.Status(); got != StatusDisabled {
		t.Errorf("Status() = %v, want %v", got, StatusDisabled)
	}
}

// ============================================================================
// WiFi prerequisite
// ============================================================================

func TestMQTTWaitsForWiFi(t *testing.T) {
	broker := &fakeBroker{}
	wifiUp := false
	m, _ := newTestMQTTManager(t, broker, &wifiUp)

	m.Enable()
	if got := m.Status(); got != StatusFailed {
		t.Errorf("Status() with WiFi down = %v, want %v", got, StatusFailed)
	}

	wifiUp = true
	m.Handle()
	if got := m.Status(); got != StatusConnecting {
		t.Errorf("Status() after WiFi up = %v, want %v", got, StatusConnecting)
	}
}

// ============================================================================
// Broker configuration
// ============================================================================

func TestSetBrokerConfigValidation(t *testing.T) {
	broker := &fakeBroker{}
	wifiUp := true
	m := NewMQTTManager(broker, nil, testMQTTSettings(), "grinder-test",
		func() bool { return wifiUp }, logging.Default())

	tests := []struct {
		name     string
		host     string
		port     uint16
		username string
		password string
	}{
		{"empty host", "", 1883, "", ""},
		{"zero port", "broker.local", 0, "", ""},
		{"oversize host", strings.Repeat("h", 129), 1883, "", ""},
		{"oversize username", "broker.local", 1883, strings.Repeat("u", 65), ""},
		{"oversize password", "broker.local", 1883, "", strings.Repeat("p", 65)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.SetBrokerConfig(tt.host, tt.port, tt.username, tt.password)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("SetBrokerConfig() error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if m.HasBrokerConfig() {
		t.Error("HasBrokerConfig() = true after rejected configs")
	}
}

func TestSetBrokerConfigApplies(t *testing.T) {
	broker := &fakeBroker{}
	wifiUp := true
	m := NewMQTTManager(broker, nil, testMQTTSettings(), "grinder-test",
		func() bool { return wifiUp }, logging.Default())

	if err := m.SetBrokerConfig("mqtt.home.lan", 8883, "grinder", "secret"); err != nil {
		t.Fatalf("SetBrokerConfig() error = %v", err)
	}

	if !m.HasBrokerConfig() {
		t.Fatal("HasBrokerConfig() = false after SetBrokerConfig")
	}
	got := m.BrokerConfig()
	want := BrokerConfig{Host: "mqtt.home.lan", Port: 8883, Username: "grinder", Password: "secret"}
	if got != want {
		t.Errorf("BrokerConfig() = %+v, want %+v", got, want)
	}
}

func TestClearBrokerConfigDisables(t *testing.T) {
	broker := &fakeBroker{}
	wifiUp := true
	m, _ := newTestMQTTManager(t, broker, &wifiUp)
	connectBroker(t, m, broker)

	m.ClearBrokerConfig()

	if m.HasBrokerConfig() {
		t.Error("HasBrokerConfig() = true after clear")
	}
	if got := m.Status(); got != StatusDisabled {
		t.Errorf("Status() = %v, want %v", got, StatusDisabled)
	}
}
