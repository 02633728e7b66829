package session

import (
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
)

const deviceIDPrefix = "grinder-"

var (
	deviceIDOnce  sync.Once
	deviceIDValue string
)

// DeviceID returns the stable identifier for this device, derived from the
// first hardware interface's MAC address. Falls back to /etc/machine-id when
// no interface carries one. The value is computed once and cached.
func DeviceID() string {
	deviceIDOnce.Do(func() {
		deviceIDValue = computeDeviceID()
	})
	return deviceIDValue
}

func computeDeviceID() string {
	if mac := firstHardwareAddr(); mac != "" {
		return deviceIDPrefix + mac
	}
	if data, err := os.ReadFile("/etc/machine-id"); err == nil {
		id := strings.TrimSpace(string(data))
		if len(id) >= 12 {
			return deviceIDPrefix + id[:12]
		}
		if id != "" {
			return deviceIDPrefix + id
		}
	}
	return deviceIDPrefix + "unknown"
}

func firstHardwareAddr() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) < 6 {
			continue
		}
		mac := iface.HardwareAddr
		return fmt.Sprintf("%02x%02x%02x%02x%02x%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
	}
	return ""
}
