package conn

// WiFiStatus is the WiFi half of the status snapshot exposed to
// collaborators (diagnostics console, status mirrors).
type WiFiStatus struct {
	Enabled        bool   `json:"enabled"`
	Connected      bool   `json:"connected"`
	HasCredentials bool   `json:"has_credentials"`
	SSID           string `json:"ssid,omitempty"`
	IP             string `json:"ip,omitempty"`
	RSSI           int    `json:"rssi,omitempty"`
	Status         string `json:"status"`
}

// MQTTStatus is the MQTT half of the status snapshot.
type MQTTStatus struct {
	Enabled          bool   `json:"enabled"`
	Connected        bool   `json:"connected"`
	HasConfig        bool   `json:"has_config"`
	Broker           string `json:"broker,omitempty"`
	Port             uint16 `json:"port,omitempty"`
	PendingPublishes int    `json:"pending_publishes"`
	Status           string `json:"status"`
}

// Snapshot is the combined status surface.
type Snapshot struct {
	WiFi WiFiStatus `json:"wifi"`
	MQTT MQTTStatus `json:"mqtt"`
}

// StatusInfo returns the WiFi manager's half of the snapshot.
func (w *WiFiManager) StatusInfo() WiFiStatus {
	return WiFiStatus{
		Enabled:        w.Enabled(),
		Connected:      w.IsConnected(),
		HasCredentials: w.HasCredentials(),
		SSID:           w.SSID(),
		IP:             w.IP(),
		RSSI:           w.RSSI(),
		Status:         w.Status().String(),
	}
}

// StatusInfo returns the MQTT manager's half of the snapshot.
func (m *MQTTManager) StatusInfo() MQTTStatus {
	cfg := m.BrokerConfig()
	info := MQTTStatus{
		Enabled:          m.Enabled(),
		Connected:        m.IsConnected(),
		HasConfig:        m.HasBrokerConfig(),
		PendingPublishes: m.PendingPublishes(),
		Status:           m.Status().String(),
	}
	if cfg.Host != "" {
		info.Broker = cfg.Host
		info.Port = cfg.Port
	}
	return info
}

// BuildSnapshot assembles the full status surface from both managers.
func BuildSnapshot(wifi *WiFiManager, mqtt *MQTTManager) Snapshot {
	return Snapshot{
		WiFi: wifi.StatusInfo(),
		MQTT: mqtt.StatusInfo(),
	}
}
