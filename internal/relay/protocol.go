package relay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
)

// Wire constants. The link is newline-terminated UTF-8 JSON, one frame per
// line, in both directions.
const (
	// MaxLineBytes bounds a single frame. Anything longer is discarded up
	// to the next newline; the peer is never desynchronised.
	MaxLineBytes = 512

	CmdPublish = "pub"
	CmdStatus  = "status"

	StatusOK = "ok"
)

// Request is a frame from the primary controller to the relay board.
type Request struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StatusFrame is a frame from the relay board to the primary controller,
// sent in response to a status request and unsolicited on link transitions.
type StatusFrame struct {
	Status string `json:"status"`
	WiFi   bool   `json:"wifi"`
	MQTT   bool   `json:"mqtt"`
	IP     string `json:"ip,omitempty"`
}

// publishEnvelope extracts the session identifier from a pub frame's data
// without reparsing the full record.
type publishEnvelope struct {
	SessionID uint32 `json:"session_id"`
}

// lineReader assembles newline-terminated frames off a serial stream on its
// own goroutine and hands them over through a buffered channel, so callers
// can poll without ever blocking on the device.
type lineReader struct {
	lines chan []byte
	log   *logging.Logger
}

func newLineReader(r io.Reader, log *logging.Logger) *lineReader {
	lr := &lineReader{
		lines: make(chan []byte, 16),
		log:   log,
	}
	go lr.run(r)
	return lr
}

func (lr *lineReader) run(r io.Reader) {
	defer close(lr.lines)

	br := bufio.NewReaderSize(r, MaxLineBytes)
	var (
		buf      []byte
		overflow bool
	)

	for {
		chunk, isPrefix, err := br.ReadLine()
		if len(chunk) > 0 && !overflow {
			buf = append(buf, chunk...)
			if len(buf) > MaxLineBytes {
				overflow = true
				buf = nil
			}
		}

		if err != nil {
			if err != io.EOF {
				lr.log.Warn("serial read ended", "error", err)
			}
			return
		}

		if isPrefix {
			continue
		}

		if overflow {
			lr.log.Warn("discarding oversized frame", "limit_bytes", MaxLineBytes)
			overflow = false
		} else if len(buf) > 0 {
			line := make([]byte, len(buf))
			copy(line, buf)
			select {
			case lr.lines <- line:
			default:
				lr.log.Warn("frame backlog full, dropping frame")
			}
		}
		buf = buf[:0]
	}
}

// poll returns the next complete frame without blocking.
func (lr *lineReader) poll() ([]byte, bool) {
	select {
	case line, ok := <-lr.lines:
		return line, ok
	default:
		return nil, false
	}
}

// lineWriter serialises frames onto the stream, one writer at a time.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) writeFrame(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	if len(payload) > MaxLineBytes {
		return fmt.Errorf("frame exceeds %d bytes", MaxLineBytes)
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()
	if _, err := lw.w.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}
