package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	voicemodel "github.com/zhouzirui/advisor-console/internal/model/voice"
)

// WebSocketSession follows a voice agent conversation at transcript level.
// Audio capture and playback stay with the agent's own client; this session
// only mirrors what was said and whether the agent is speaking.
type WebSocketSession struct {
	url    string
	apiKey string
	opts   ConnectionOptions

	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	status   voicemodel.Status
	speaking bool
	closing  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewWebSocketSession creates an idle session for the agent endpoint at url.
func NewWebSocketSession(url, apiKey string, opts ConnectionOptions) *WebSocketSession {
	return &WebSocketSession{
		url:    url,
		apiKey: apiKey,
		opts:   opts.withDefaults(),
		status: voicemodel.StatusIdle,
	}
}

// Status implements Session.
func (s *WebSocketSession) Status() voicemodel.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Speaking implements Session.
func (s *WebSocketSession) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Start dials the agent and begins reading events. It returns once the socket
// is open; the status turns connected when the agent acknowledges the call.
func (s *WebSocketSession) Start(ctx context.Context, agentID string, cb Callbacks) error {
	url, header, err := resolveEndpoint(s.url, agentID, s.apiKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.status.Active() || s.status == voicemodel.StatusDisconnecting {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.status = voicemodel.StatusConnecting
	s.speaking = false
	s.closing = false
	s.mu.Unlock()

	conn, err := dial(ctx, s.opts, url, header)
	if err != nil {
		s.setStatus(voicemodel.StatusDisconnected)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	if err := s.writeJSON(voicemodel.OutboundEvent{Type: voicemodel.EventInitiationClientData}); err != nil {
		cancel()
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.status = voicemodel.StatusDisconnected
		s.mu.Unlock()
		close(done)
		return fmt.Errorf("send conversation initiation: %w", err)
	}

	go pingLoop(runCtx, conn, s.opts)
	go s.readLoop(runCtx, conn, cb, done)

	return nil
}

// End closes the call and waits for the reader to finish or ctx to expire.
func (s *WebSocketSession) End(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	done := s.done
	if conn == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.status = voicemodel.StatusDisconnecting
	s.mu.Unlock()

	deadline := time.Now().Add(s.opts.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Printf("[voice] close frame failed: %v", err)
	}
	conn.Close()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WebSocketSession) readLoop(ctx context.Context, conn *websocket.Conn, cb Callbacks, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.conn = nil
		s.status = voicemodel.StatusDisconnected
		s.speaking = false
		s.mu.Unlock()

		conn.Close()
		cb.disconnect()
		close(done)
	}()

	for {
		var ev voicemodel.InboundEvent
		if err := conn.ReadJSON(&ev); err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()

			if !closing && ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				cb.fail(fmt.Errorf("voice connection lost: %w", err))
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		s.handleEvent(&ev, cb)
	}
}

func (s *WebSocketSession) handleEvent(ev *voicemodel.InboundEvent, cb Callbacks) {
	switch ev.Type {
	case voicemodel.EventInitiationMetadata:
		id := ""
		if ev.InitiationMetadata != nil {
			id = ev.InitiationMetadata.ConversationID
		}
		s.setStatus(voicemodel.StatusConnected)
		cb.connect(id)

	case voicemodel.EventUserTranscript:
		s.setSpeaking(false)
		if ev.UserTranscription == nil {
			return
		}
		if text := strings.TrimSpace(ev.UserTranscription.UserTranscript); text != "" {
			cb.message(voicemodel.Transcript{Source: "user", Message: text})
		}

	case voicemodel.EventAgentResponse:
		if ev.AgentResponse == nil {
			return
		}
		if text := strings.TrimSpace(ev.AgentResponse.AgentResponse); text != "" {
			cb.message(voicemodel.Transcript{Source: "ai", Message: text})
		}

	case voicemodel.EventAudio:
		s.setSpeaking(true)

	case voicemodel.EventInterruption:
		s.setSpeaking(false)

	case voicemodel.EventPing:
		if ev.Ping == nil {
			return
		}
		if err := s.writeJSON(voicemodel.OutboundEvent{Type: voicemodel.EventPong, EventID: ev.Ping.EventID}); err != nil {
			cb.fail(fmt.Errorf("answer ping: %w", err))
		}

	default:
		// other agent events carry audio metadata or tool calls the console does not show
	}
}

func (s *WebSocketSession) writeJSON(v any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("voice session not connected")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	return conn.WriteJSON(v)
}

func (s *WebSocketSession) setStatus(status voicemodel.Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *WebSocketSession) setSpeaking(v bool) {
	s.mu.Lock()
	s.speaking = v
	s.mu.Unlock()
}
