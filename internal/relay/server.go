package relay

import (
	"encoding/json"
	"io"
	"sync/atomic"

	"github.com/grindwise/grindlink-core/internal/conn"
	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
)

// WiFiState is the WiFi-side view the server reports over the link.
type WiFiState interface {
	IsConnected() bool
	IP() string
}

// BrokerState is the MQTT-side view: liveness plus raw session publishing.
type BrokerState interface {
	IsConnected() bool
	PublishRaw(sessionID uint32, payload []byte) (conn.PublishResult, error)
}

// Server is the relay-board side of the serial link. It answers pub and
// status requests from the primary controller and pushes an unsolicited
// status frame after a link transition.
//
// Transitions are signalled through MarkDirty rather than written directly:
// manager status callbacks run under the manager mutex, so the actual frame
// (which reads manager state back) is deferred to the next Handle call.
type Server struct {
	wifi   WiFiState
	broker BrokerState
	log    *logging.Logger

	reader *lineReader
	writer *lineWriter

	dirty atomic.Bool
}

// NewServer creates a relay server over the given stream and starts its
// frame reader.
func NewServer(rw io.ReadWriter, wifi WiFiState, broker BrokerState, log *logging.Logger) *Server {
	log = log.With("component", "relay_server")
	return &Server{
		wifi:   wifi,
		broker: broker,
		log:    log,
		reader: newLineReader(rw, log),
		writer: &lineWriter{w: rw},
	}
}

// MarkDirty schedules an unsolicited status frame. Safe to call from
// manager status callbacks.
func (s *Server) MarkDirty() {
	s.dirty.Store(true)
}

// Handle services the link by one tick: every buffered request is answered,
// then a pending unsolicited status frame is flushed. Never blocks.
func (s *Server) Handle() {
	for {
		line, ok := s.reader.poll()
		if !ok {
			break
		}
		s.handleRequest(line)
	}

	if s.dirty.Swap(false) {
		s.SendStatus()
	}
}

// handleRequest decodes and dispatches one frame. Malformed frames are
// logged and dropped; link state is never affected.
func (s *Server) handleRequest(line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Warn("malformed frame", "error", err)
		return
	}

	switch req.Cmd {
	case CmdPublish:
		s.handlePublish(req.Data)
	case CmdStatus:
		s.SendStatus()
	default:
		s.log.Warn("unknown command", "cmd", req.Cmd)
	}
}

func (s *Server) handlePublish(data json.RawMessage) {
	if len(data) == 0 {
		s.log.Warn("pub frame without data")
		return
	}

	var env publishEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Warn("pub frame with malformed data", "error", err)
		return
	}

	result, err := s.broker.PublishRaw(env.SessionID, data)
	if err != nil {
		s.log.Warn("relayed publish refused", "session_id", env.SessionID, "error", err)
		return
	}
	s.log.Info("relayed publish", "session_id", env.SessionID, "result", result.String())
}

// SendStatus writes one status frame reflecting the current link state.
func (s *Server) SendStatus() {
	frame := StatusFrame{
		Status: StatusOK,
		WiFi:   s.wifi.IsConnected(),
		MQTT:   s.broker.IsConnected(),
		IP:     s.wifi.IP(),
	}
	if err := s.writer.writeFrame(frame); err != nil {
		s.log.Warn("writing status frame", "error", err)
	}
}
