package conn

import (
	"errors"
	"strings"
	"testing"

	"github.com/grindwise/grindlink-core/internal/infrastructure/config"
	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
	"github.com/grindwise/grindlink-core/internal/infrastructure/prefs"
)

// fakeWiFi is a scriptable WiFiTransport.
type fakeWiFi struct {
	joinCalls  int
	leaveCalls int
	joinErr    error
	connected  bool
	ssid       string
	ip         string
	rssi       int
}

func (f *fakeWiFi) Join(ssid, password string) error {
	f.joinCalls++
	f.ssid = ssid
	return f.joinErr
}

func (f *fakeWiFi) Connected() bool { return f.connected }

func (f *fakeWiFi) Leave() {
	f.connected = false
	f.leaveCalls++
}

func (f *fakeWiFi) IP() string { return f.ip }
func (f *fakeWiFi) RSSI() int  { return f.rssi }

func testWiFiSettings() config.WiFiSettings {
	return config.WiFiSettings{
		Interface:            "wlan0",
		ConnectTimeout:       10,
		ReconnectBaseline:    5,
		ReconnectCeiling:     30,
		MaxReconnectAttempts: 3,
	}
}

func newTestWiFiManager(t *testing.T, transport *fakeWiFi, store *prefs.Store) *WiFiManager {
	t.Helper()
	return NewWiFiManager(transport, store, testWiFiSettings(), logging.Default())
}

// ============================================================================
// Credentials
// ============================================================================

func TestSetCredentialsValidation(t *testing.T) {
	w := newTestWiFiManager(t, &fakeWiFi{}, nil)

	tests := []struct {
		name     string
		ssid     string
		password string
	}{
		{"empty ssid", "", "password"},
		{"empty password", "HomeNet", ""},
		{"oversize ssid", strings.Repeat("s", 33), "password"},
		{"oversize password", "HomeNet", strings.Repeat("p", 65)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.SetCredentials(tt.ssid, tt.password)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("SetCredentials(%q, ...) error = %v, want ErrInvalidConfig", tt.ssid, err)
			}
		})
	}

	if w.HasCredentials() {
		t.Error("HasCredentials() = true after rejected credentials")
	}
}

func TestSetCredentialsBoundaryLengths(t *testing.T) {
	w := newTestWiFiManager(t, &fakeWiFi{}, nil)

	ssid := strings.Repeat("s", 32)
	password := strings.Repeat("p", 64)
	if err := w.SetCredentials(ssid, password); err != nil {
		t.Fatalf("SetCredentials() at limits error = %v", err)
	}
	if !w.HasCredentials() {
		t.Error("HasCredentials() = false after valid credentials")
	}
	if w.SSID() != ssid {
		t.Errorf("SSID() = %q, want %q", w.SSID(), ssid)
	}
}

func TestCredentialsPersistAcrossRestart(t *testing.T) {
	store := openTestStore(t)

	w := newTestWiFiManager(t, &fakeWiFi{}, store)
	if err := w.SetCredentials("HomeNet", "hunter22"); err != nil {
		t.Fatalf("SetCredentials() error = %v", err)
	}
	w.Enable()

	// A fresh manager over the same store picks up credentials and the
	// enabled flag, and begins connecting during Init.
	transport := &fakeWiFi{}
	w2 := newTestWiFiManager(t, transport, store)
	w2.Init()

	if w2.SSID() != "HomeNet" {
		t.Errorf("SSID() after restart = %q, want HomeNet", w2.SSID())
	}
	if got := w2.Status(); got != StatusConnecting {
		t.Errorf("Status() after restart = %v, want %v", got, StatusConnecting)
	}
	if transport.joinCalls != 1 {
		t.Errorf("Join called %d times, want 1", transport.joinCalls)
	}
	if transport.ssid != "HomeNet" {
		t.Errorf("Join ssid = %q, want HomeNet", transport.ssid)
	}
}

func TestClearCredentialsDisables(t *testing.T) {
	store := openTestStore(t)
	transport := &fakeWiFi{}
	w := newTestWiFiManager(t, transport, store)

	if err := w.SetCredentials("HomeNet", "hunter22"); err != nil {
		t.Fatalf("SetCredentials() error = %v", err)
	}
	w.Enable()
	transport.connected = true
	w.Handle()

	w.ClearCredentials()

	if w.HasCredentials() {
		t.Error("HasCredentials() = true after clear")
	}
	if got := w.Status(); got != StatusDisabled {
		t.Errorf("Status() = %v, want %v", got, StatusDisabled)
	}
	if transport.leaveCalls == 0 {
		t.Error("Leave not called on clear-induced disable")
	}
	if store.Has("wifi_ssid") || store.Has("wifi_password") {
		t.Error("credentials still in store after clear")
	}
}

// ============================================================================
// Connection lifecycle
// ============================================================================

func TestWiFiEnableWithoutCredentials(t *testing.T) {
	transport := &fakeWiFi{}
	w := newTestWiFiManager(t, transport, nil)

	w.Enable()

	if got := w.Status(); got != StatusFailed {
		t.Errorf("Status() = %v, want %v", got, StatusFailed)
	}
	if transport.joinCalls != 0 {
		t.Errorf("Join called %d times, want 0", transport.joinCalls)
	}
}

func TestWiFiConnectFlow(t *testing.T) {
	transport := &fakeWiFi{ip: "192.168.1.50", rssi: -56}
	w := newTestWiFiManager(t, transport, nil)

	if err := w.SetCredentials("HomeNet", "hunter22"); err != nil {
		t.Fatalf("SetCredentials() error = %v", err)
	}
	w.Enable()
	transport.connected = true
	w.Handle()

	if !w.IsConnected() {
		t.Fatal("IsConnected() = false after association")
	}
	if got := w.IP(); got != "192.168.1.50" {
		t.Errorf("IP() = %q, want 192.168.1.50", got)
	}
	if got := w.RSSI(); got != -56 {
		t.Errorf("RSSI() = %d, want -56", got)
	}
}

// IP and RSSI report zero values while the link is down, regardless of what
// the transport would say.
func TestWiFiAccessorsGatedOnConnection(t *testing.T) {
	transport := &fakeWiFi{ip: "192.168.1.50", rssi: -56}
	w := newTestWiFiManager(t, transport, nil)

	if got := w.IP(); got != "" {
		t.Errorf("IP() while disconnected = %q, want empty", got)
	}
	if got := w.RSSI(); got != 0 {
		t.Errorf("RSSI() while disconnected = %d, want 0", got)
	}
}
