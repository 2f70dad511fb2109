package socketrouter

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loool999/browser-test-2/internal/stream"
)

// socket is the per-connection state: exactly one browserId (spec.md §4.5's
// ownership rule) and, once init'd, exactly one Stream Engine producer.
type socket struct {
	id     string
	conn   *websocket.Conn
	router *Router

	writeMu sync.Mutex
	send    chan []byte // reliable: acks, pong, stream-settings-updated
	frames  chan []byte // best-effort: dropped when full, per spec.md §5

	sessionID string

	mu        sync.Mutex
	browserID string
	producer  *stream.Producer
	prodStop  context.CancelFunc
	closed    bool
}

// Emit implements stream.FrameSink: a non-blocking send that reports
// whether the frame was accepted, so the producer can count drops.
func (s *socket) Emit(f stream.Frame) bool {
	raw, err := json.Marshal(envelope{Name: msgFrame, Payload: mustMarshal(f)})
	if err != nil {
		return false
	}
	select {
	case s.frames <- raw:
		return true
	default:
		return false
	}
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

func (s *socket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				s.writeControl(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.writeText(msg); err != nil {
				return
			}
		case msg := <-s.frames:
			if err := s.writeText(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *socket) writeText(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *socket) writeControl(kind int, b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(kind, b)
}

func (s *socket) readPump() {
	defer func() {
		s.teardown("disconnect")
		s.router.removeSocket(s)
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.replyFailure(env.Ack, "malformed message")
			continue
		}

		s.dispatch(env)
	}
}

// dispatch routes one inbound envelope to its handler. Each handler turns
// its own errors into a {success:false,error} ack when the message carries
// an ack id; dispatch itself only replies for unknown message names.
// latency-report and ping never send an ack reply.
func (s *socket) dispatch(env envelope) {
	ctx := context.Background()

	switch env.Name {
	case msgInit:
		s.handleInit(ctx, env)
	case msgNavigate:
		s.handleNavigate(ctx, env)
	case msgAction:
		s.handleAction(ctx, env)
	case msgResize:
		s.handleResize(ctx, env)
	case msgStatus:
		s.handleStatus(env)
	case msgStreamSettings:
		s.handleStreamSettings(env)
	case msgStreamControl:
		s.handleStreamControl(env)
	case msgLatencyReport:
		s.handleLatencyReport(env)
	case msgPing:
		s.handlePing(env)
	default:
		s.replyFailure(env.Ack, "unknown message name")
	}
}

func (s *socket) replyFailure(ack string, message string) {
	if ack == "" {
		return
	}
	s.sendAck(ack, failureAck{Success: false, Error: message})
}

func (s *socket) sendAck(ack string, payload any) {
	if ack == "" {
		return
	}
	raw, err := json.Marshal(envelope{Name: ack, Payload: mustMarshal(payload)})
	if err != nil {
		return
	}
	select {
	case s.send <- raw:
	case <-time.After(writeWait):
	}
}

func (s *socket) sendOut(name string, payload any) {
	raw, err := json.Marshal(envelope{Name: name, Payload: mustMarshal(payload)})
	if err != nil {
		return
	}
	select {
	case s.send <- raw:
	case <-time.After(writeWait):
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// teardown closes the producer and the owned browser exactly once, per
// spec.md §8's "Disconnect cleanup" scenario and §4.5's ownership rule.
func (s *socket) teardown(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	producer := s.producer
	browserID := s.browserID
	stop := s.prodStop
	s.producer = nil
	s.browserID = ""
	s.prodStop = nil
	s.mu.Unlock()

	if producer != nil {
		producer.Terminate()
	}
	if stop != nil {
		stop()
	}
	if browserID != "" {
		s.router.pool.Close(browserID)
		s.router.logger.Info("browser closed on teardown",
			slog.String("socket_id", s.id),
			slog.String("browser_id", browserID),
			slog.String("reason", reason))
	}

	s.conn.Close()
	close(s.send)
}
