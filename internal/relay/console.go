package relay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/grindwise/grindlink-core/internal/conn"
	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
	"github.com/grindwise/grindlink-core/internal/infrastructure/prefs"
)

const consoleHelp = `commands:
  wifi ssid=<ssid> pass=<password>                 configure and enable wifi
  mqtt broker=<host> port=<port> [user=] [pass=]   configure and enable mqtt
  status                                           show link status
  reset                                            clear all configuration
  help                                             this text`

// Console parses operator commands on the relay board's maintenance
// interface and applies them to the connection managers.
type Console struct {
	wifi  *conn.WiFiManager
	mqtt  *conn.MQTTManager
	store *prefs.Store
	log   *logging.Logger
}

// NewConsole creates a command console over the given managers.
func NewConsole(wifi *conn.WiFiManager, mqtt *conn.MQTTManager, store *prefs.Store, log *logging.Logger) *Console {
	return &Console{
		wifi:  wifi,
		mqtt:  mqtt,
		store: store,
		log:   log.With("component", "console"),
	}
}

// Execute runs one command line and returns the text to show the operator.
// Unknown or malformed commands report usage; nothing here is fatal.
func (c *Console) Execute(line string) string {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return ""
	}

	switch fields[0] {
	case "wifi":
		return c.execWiFi(parseArgs(fields[1:]))
	case "mqtt":
		return c.execMQTT(parseArgs(fields[1:]))
	case "status":
		return c.execStatus()
	case "reset":
		return c.execReset()
	case "help":
		return consoleHelp
	default:
		return fmt.Sprintf("unknown command %q (try help)", fields[0])
	}
}

// parseArgs splits key=value tokens. Tokens without '=' are ignored.
func parseArgs(tokens []string) map[string]string {
	args := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		key, value, found := strings.Cut(tok, "=")
		if found {
			args[key] = value
		}
	}
	return args
}

func (c *Console) execWiFi(args map[string]string) string {
	ssid, password := args["ssid"], args["pass"]
	if ssid == "" || password == "" {
		return "usage: wifi ssid=<ssid> pass=<password>"
	}

	if err := c.wifi.SetCredentials(ssid, password); err != nil {
		return fmt.Sprintf("wifi config rejected: %v", err)
	}

	// Reconnect with the new credentials regardless of previous state.
	if c.wifi.Enabled() {
		c.wifi.Disable()
	}
	c.wifi.Enable()
	c.log.Info("wifi configured via console", "ssid", ssid)
	return fmt.Sprintf("wifi configured for %q, connecting", ssid)
}

func (c *Console) execMQTT(args map[string]string) string {
	host := args["broker"]
	if host == "" {
		return "usage: mqtt broker=<host> port=<port> [user=<user>] [pass=<password>]"
	}

	port := uint16(conn.DefaultBrokerPort)
	if raw, ok := args["port"]; ok {
		parsed, err := strconv.ParseUint(raw, 10, 16)
		if err != nil || parsed == 0 {
			return fmt.Sprintf("invalid port %q", raw)
		}
		port = uint16(parsed)
	}

	if err := c.mqtt.SetBrokerConfig(host, port, args["user"], args["pass"]); err != nil {
		return fmt.Sprintf("mqtt config rejected: %v", err)
	}

	if c.mqtt.Enabled() {
		c.mqtt.Disable()
	}
	c.mqtt.Enable()
	c.log.Info("mqtt configured via console", "broker", host, "port", port)
	return fmt.Sprintf("mqtt configured for %s:%d, connecting", host, port)
}

func (c *Console) execStatus() string {
	snap := conn.BuildSnapshot(c.wifi, c.mqtt)
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Sprintf("rendering status: %v", err)
	}
	return string(out)
}

func (c *Console) execReset() string {
	c.log.Warn("factory reset via console")

	c.wifi.ClearCredentials()
	c.mqtt.ClearBrokerConfig()
	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			return fmt.Sprintf("reset incomplete: %v", err)
		}
	}
	return "configuration cleared"
}
