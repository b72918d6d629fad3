package socket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	consoleService "github.com/zhouzirui/advisor-console/internal/service/console"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler 向浏览器推送控制器事件，并在同一连接上接收控制台指令
type WebSocketHandler struct {
	ctrl     *consoleService.Controller
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建处理器，checkOrigin 为 nil 时接受所有来源
func NewWebSocketHandler(ctrl *consoleService.Controller, checkOrigin func(*http.Request) bool) *WebSocketHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WebSocketHandler{
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册 GET /ws 路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 入站 "text" 消息的负载
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// conn 串行化写操作，gorilla 只允许单个并发写者
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	c := &conn{ws: ws}
	sessionID := h.ctrl.SessionID()
	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	events, unsubscribe := h.ctrl.Subscribe()
	defer unsubscribe()

	if err := c.send(outgoingMessage{Type: "connected", SessionID: sessionID, Data: h.ctrl.Snapshot(), Timestamp: time.Now().Unix()}); err != nil {
		log.Printf("[websocket] write state failed: %v", err)
		return
	}

	go pingLoop(ctx, ws)
	go h.forwardEvents(ctx, c, events, sessionID)

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		ws.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(c, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(c *conn, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var payload TextMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			h.sendError(c, "invalid text payload")
			return
		}
		if strings.TrimSpace(payload.Text) == "" {
			h.sendError(c, "text is required")
			return
		}
		h.ctrl.SendAsync(payload.Text)
	case "call_start":
		go h.ctrl.StartCall(context.Background())
	case "call_end":
		go h.ctrl.EndCall(context.Background())
	case "audit_toggle":
		go h.ctrl.ToggleAudit(context.Background())
	case "audit_refresh":
		go h.ctrl.RefreshAudit(context.Background())
	default:
		h.sendError(c, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) forwardEvents(ctx context.Context, c *conn, events <-chan consoleService.Event, sessionID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg := outgoingMessage{Type: string(ev.Type), SessionID: sessionID, Data: ev.Data, Timestamp: time.Now().Unix()}
			if err := c.send(msg); err != nil {
				log.Printf("[websocket] write event failed: %v", err)
				return
			}
		}
	}
}

func (h *WebSocketHandler) sendError(c *conn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := c.send(msg); err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

func pingLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
