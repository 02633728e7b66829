package conn

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
)

// procNetWireless exposes per-interface signal levels on Linux.
const procNetWireless = "/proc/net/wireless"

// InterfaceTransport is the production WiFiTransport on a Linux host.
//
// Station association itself is delegated to the host's supplicant
// (wpa_supplicant or equivalent, configured with the same credentials the
// manager persists); this transport polls the named interface for an
// operational link (up with a unicast address) and reads signal strength
// from /proc/net/wireless. Join validates that the interface exists so a
// misconfigured interface name fails the attempt immediately.
type InterfaceTransport struct {
	name string

	mu     sync.Mutex
	joined bool
}

// NewInterfaceTransport creates a transport watching the named wireless
// interface (e.g. "wlan0").
func NewInterfaceTransport(name string) *InterfaceTransport {
	return &InterfaceTransport{name: name}
}

// Join begins an association attempt.
func (t *InterfaceTransport) Join(ssid, password string) error {
	if _, err := net.InterfaceByName(t.name); err != nil {
		return fmt.Errorf("wireless interface %q: %w", t.name, err)
	}

	t.mu.Lock()
	t.joined = true
	t.mu.Unlock()
	return nil
}

// Connected reports whether the interface is up with a unicast address.
func (t *InterfaceTransport) Connected() bool {
	t.mu.Lock()
	joined := t.joined
	t.mu.Unlock()
	if !joined {
		return false
	}
	return t.address() != ""
}

// Leave abandons the association.
func (t *InterfaceTransport) Leave() {
	t.mu.Lock()
	t.joined = false
	t.mu.Unlock()
}

// IP returns the station address, or "" when not connected.
func (t *InterfaceTransport) IP() string {
	t.mu.Lock()
	joined := t.joined
	t.mu.Unlock()
	if !joined {
		return ""
	}
	return t.address()
}

// RSSI returns the signal level in dBm from /proc/net/wireless, or 0 when
// unavailable.
func (t *InterfaceTransport) RSSI() int {
	f, err := os.Open(procNetWireless)
	if err != nil {
		return 0
	}
	defer f.Close()
	return parseWirelessRSSI(f, t.name)
}

// address returns the interface's first global unicast IPv4 address.
func (t *InterfaceTransport) address() string {
	iface, err := net.InterfaceByName(t.name)
	if err != nil || iface.Flags&net.FlagUp == 0 {
		return ""
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP.To4()
		if ip != nil && ip.IsGlobalUnicast() {
			return ip.String()
		}
	}
	return ""
}

// parseWirelessRSSI extracts the signal level for iface from
// /proc/net/wireless content. The file has two header lines followed by one
// line per interface:
//
//	wlan0: 0000   54.  -56.  -256        0      0      0      0      0        0
//
// The fourth field is the signal level in dBm.
func parseWirelessRSSI(r io.Reader, iface string) int {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], iface+":") {
			continue
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err != nil {
			return 0
		}
		return int(level)
	}
	return 0
}
