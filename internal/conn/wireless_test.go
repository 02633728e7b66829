package conn

import (
	"strings"
	"testing"
)

const sampleWireless = `Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
 wlan0: 0000   54.  -56.  -256        0      0      0      0      0        0
 wlan1: 0000   60.  -48.  -256        0      0      0      0      0        0
`

func TestParseWirelessRSSI(t *testing.T) {
	tests := []struct {
		iface string
		want  int
	}{
		{"wlan0", -56},
		{"wlan1", -48},
		{"wlan2", 0},
	}
	for _, tt := range tests {
		got := parseWirelessRSSI(strings.NewReader(sampleWireless), tt.iface)
		if got != tt.want {
			t.Errorf("parseWirelessRSSI(%q) = %d, want %d", tt.iface, got, tt.want)
		}
	}
}

func TestParseWirelessRSSIEmpty(t *testing.T) {
	if got := parseWirelessRSSI(strings.NewReader(""), "wlan0"); got != 0 {
		t.Errorf("parseWirelessRSSI(empty) = %d, want 0", got)
	}
}

func TestInterfaceTransportNotJoined(t *testing.T) {
	tr := NewInterfaceTransport("wlan0")

	if tr.Connected() {
		t.Error("Connected() = true before Join")
	}
	if got := tr.IP(); got != "" {
		t.Errorf("IP() before Join = %q, want empty", got)
	}
}

func TestInterfaceTransportJoinUnknownInterface(t *testing.T) {
	tr := NewInterfaceTransport("definitely-not-an-interface0")

	if err := tr.Join("HomeNet", "hunter22"); err == nil {
		t.Error("Join() with unknown interface = nil, want error")
	}
	if tr.Connected() {
		t.Error("Connected() = true after failed Join")
	}
}
