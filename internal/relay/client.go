package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
	"github.com/grindwise/grindlink-core/internal/session"
)

// Client is the primary-controller side of the serial link: it forwards
// session records to the relay board and mirrors the board's connectivity
// so the rest of the daemon can ask "is the network up" without owning any
// radio itself.
//
// The client carries no state machine. The relay board does the connecting
// and reconnecting; the client only tracks the last status frame it saw.
type Client struct {
	log    *logging.Logger
	reader *lineReader
	writer *lineWriter

	statusInterval time.Duration
	now            func() time.Time

	mu            sync.Mutex
	ready         bool
	wifi          bool
	mqtt          bool
	ip            string
	lastStatusReq time.Time
}

// NewClient creates a relay client over the given stream and starts its
// frame reader.
func NewClient(rw io.ReadWriter, statusInterval time.Duration, log *logging.Logger) *Client {
	log = log.With("component", "relay_client")
	return &Client{
		log:            log,
		reader:         newLineReader(rw, log),
		writer:         &lineWriter{w: rw},
		statusInterval: statusInterval,
		now:            time.Now,
	}
}

// PublishSession forwards a session record to the relay board for
// publishing. Delivery guarantees beyond the serial write are the board's
// responsibility.
func (c *Client) PublishSession(s *session.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("serialising session %d: %w", s.SessionID, err)
	}
	c.log.Info("forwarding session", "session_id", s.SessionID, "payload_bytes", len(payload))
	return c.writer.writeFrame(Request{Cmd: CmdPublish, Data: payload})
}

// RequestStatus asks the board for a status frame.
func (c *Client) RequestStatus() error {
	return c.writer.writeFrame(Request{Cmd: CmdStatus})
}

// Handle services the link by one tick: buffered status frames are applied,
// and a fresh status request goes out once per status interval. Never
// blocks.
func (c *Client) Handle() {
	for {
		line, ok := c.reader.poll()
		if !ok {
			break
		}
		c.applyFrame(line)
	}

	c.mu.Lock()
	due := c.now().Sub(c.lastStatusReq) >= c.statusInterval
	if due {
		c.lastStatusReq = c.now()
	}
	c.mu.Unlock()

	if due {
		if err := c.RequestStatus(); err != nil {
			c.log.Warn("requesting status", "error", err)
		}
	}
}

// applyFrame folds one status frame into the mirrored state, logging edges.
func (c *Client) applyFrame(line []byte) {
	var frame StatusFrame
	if err := json.Unmarshal(line, &frame); err != nil {
		c.log.Warn("malformed status frame", "error", err)
		return
	}
	if frame.Status != StatusOK {
		c.log.Warn("relay reports error status", "status", frame.Status)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		c.log.Info("relay link established")
		c.ready = true
	}
	if frame.WiFi != c.wifi {
		c.log.Info("relay wifi changed", "connected", frame.WiFi)
	}
	if frame.MQTT != c.mqtt {
		c.log.Info("relay mqtt changed", "connected", frame.MQTT)
	}
	c.wifi = frame.WiFi
	c.mqtt = frame.MQTT
	c.ip = frame.IP
}

// IsReady reports whether at least one status frame has arrived.
func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// IsWiFiConnected reports the board's last known WiFi state.
func (c *Client) IsWiFiConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wifi
}

// IsMQTTConnected reports the board's last known MQTT state.
func (c *Client) IsMQTTConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mqtt
}

// IP returns the board's last reported station address.
func (c *Client) IP() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ip
}
