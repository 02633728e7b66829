package conn

import (
	"fmt"
	"sync"

	"github.com/grindwise/grindlink-core/internal/infrastructure/config"
	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
	"github.com/grindwise/grindlink-core/internal/infrastructure/prefs"
)

// Credential length bounds, matching 802.11 SSID and WPA passphrase limits.
const (
	maxSSIDLength         = 32
	maxWiFiPasswordLength = 64
)

// Preferences keys for WiFi state.
const (
	keyWiFiSSID     = "wifi_ssid"
	keyWiFiPassword = "wifi_password"
	keyWiFiEnabled  = "wifi_enabled"
)

// WiFiTransport is the station-mode radio capability behind the WiFi
// manager. All methods are non-blocking; association progress is observed
// by polling Connected.
type WiFiTransport interface {
	// Join begins association with the given network.
	Join(ssid, password string) error

	// Connected reports whether the station currently has a usable link.
	Connected() bool

	// Leave abandons the association immediately.
	Leave()

	// IP returns the station address, or "" when not connected.
	IP() string

	// RSSI returns the signal strength in dBm, or 0 when unknown.
	RSSI() int
}

// WiFiManager owns station-mode association state: credentials persisted in
// the preferences store, and the shared connection state machine with
// exponential-backoff reconnection. After the attempt ceiling it gives up
// permanently into StatusFailed until the next Disable/Enable cycle.
type WiFiManager struct {
	*Manager

	transport WiFiTransport
	store     *prefs.Store
	log       *logging.Logger

	credsMu  sync.Mutex
	ssid     string
	password string
}

// NewWiFiManager creates the WiFi-side manager. The store may be nil for
// tests; credentials are then held in memory only.
func NewWiFiManager(transport WiFiTransport, store *prefs.Store, settings config.WiFiSettings, log *logging.Logger) *WiFiManager {
	w := &WiFiManager{
		transport: transport,
		store:     store,
		log:       log.With("link", "wifi"),
	}

	w.Manager = NewManager(&wifiLink{w: w}, store, Options{
		Name:           "wifi",
		EnabledKey:     keyWiFiEnabled,
		ConnectTimeout: settings.GetConnectTimeout(),
		Backoff: Backoff{
			Baseline: settings.GetReconnectBaseline(),
			Ceiling:  settings.GetReconnectCeiling(),
		},
		MaxAttempts: settings.MaxReconnectAttempts,
		HasConfig:   w.HasCredentials,
		Logger:      log,
	})

	return w
}

// wifiLink adapts the WiFiTransport to the generic Link interface.
type wifiLink struct {
	w *WiFiManager
}

func (l *wifiLink) Connect() error {
	ssid, password := l.w.credentials()
	l.w.log.Info("connecting", "ssid", ssid)
	return l.w.transport.Join(ssid, password)
}

func (l *wifiLink) IsConnected() bool {
	return l.w.transport.Connected()
}

func (l *wifiLink) Teardown() {
	l.w.transport.Leave()
}

// Init loads persisted credentials, then runs the generic manager Init
// (which auto-enables when the persisted enabled flag and credentials are
// both present).
func (w *WiFiManager) Init() {
	if w.store != nil {
		w.credsMu.Lock()
		w.ssid = w.store.GetString(keyWiFiSSID, "")
		w.password = w.store.GetString(keyWiFiPassword, "")
		w.credsMu.Unlock()
	}
	w.Manager.Init()
}

// SetCredentials validates, persists, and applies new WiFi credentials.
//
// It does not itself trigger reconnection: the caller must Disable/Enable,
// or let the state machine's disconnect-detection path pick the change up.
func (w *WiFiManager) SetCredentials(ssid, password string) error {
	if ssid == "" {
		return fmt.Errorf("%w: empty SSID", ErrInvalidConfig)
	}
	if password == "" {
		return fmt.Errorf("%w: empty password", ErrInvalidConfig)
	}
	if len(ssid) > maxSSIDLength {
		return fmt.Errorf("%w: SSID exceeds %d bytes", ErrInvalidConfig, maxSSIDLength)
	}
	if len(password) > maxWiFiPasswordLength {
		return fmt.Errorf("%w: password exceeds %d bytes", ErrInvalidConfig, maxWiFiPasswordLength)
	}

	w.log.Info("setting credentials", "ssid", ssid)

	w.credsMu.Lock()
	w.ssid = ssid
	w.password = password
	w.credsMu.Unlock()

	if w.store != nil {
		if err := w.store.PutString(keyWiFiSSID, ssid); err != nil {
			return err
		}
		if err := w.store.PutString(keyWiFiPassword, password); err != nil {
			return err
		}
	}
	return nil
}

// ClearCredentials removes stored credentials and disables the link if it
// was enabled.
func (w *WiFiManager) ClearCredentials() {
	w.log.Info("clearing credentials")

	w.credsMu.Lock()
	w.ssid = ""
	w.password = ""
	w.credsMu.Unlock()

	if w.store != nil {
		if err := w.store.Remove(keyWiFiSSID); err != nil {
			w.log.Error("removing ssid", "error", err)
		}
		if err := w.store.Remove(keyWiFiPassword); err != nil {
			w.log.Error("removing password", "error", err)
		}
	}

	if w.Enabled() {
		w.Disable()
	}
}

// HasCredentials reports whether both SSID and password are configured.
func (w *WiFiManager) HasCredentials() bool {
	w.credsMu.Lock()
	defer w.credsMu.Unlock()
	return w.ssid != "" && w.password != ""
}

// credentials returns the current SSID and password.
func (w *WiFiManager) credentials() (string, string) {
	w.credsMu.Lock()
	defer w.credsMu.Unlock()
	return w.ssid, w.password
}

// SSID returns the configured network name, or "" if unconfigured.
func (w *WiFiManager) SSID() string {
	w.credsMu.Lock()
	defer w.credsMu.Unlock()
	return w.ssid
}

// IP returns the station address, or "" when not connected.
func (w *WiFiManager) IP() string {
	if !w.IsConnected() {
		return ""
	}
	return w.transport.IP()
}

// RSSI returns the signal strength in dBm, or 0 when not connected.
func (w *WiFiManager) RSSI() int {
	if !w.IsConnected() {
		return 0
	}
	return w.transport.RSSI()
}
