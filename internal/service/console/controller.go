// Package console holds the view state of the advisor console: the message
// log fed by voice and text, the call status, and the audit panel.
package console

import (
	"context"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/zhouzirui/advisor-console/internal/model/audit"
	"github.com/zhouzirui/advisor-console/internal/model/chat"
	voicemodel "github.com/zhouzirui/advisor-console/internal/model/voice"
	"github.com/zhouzirui/advisor-console/internal/service/voice"
)

// DefaultEntryLimit caps the rendered decision log. Options.EntryLimit may
// lower it but never raise it.
const DefaultEntryLimit = 20

// Backend is the part of the advisory backend the controller talks to.
type Backend interface {
	Chat(ctx context.Context, sessionID, message string) (string, error)
	Audit(ctx context.Context) (*audit.Log, error)
	LatestProfile(ctx context.Context) (*audit.LatestProfile, error)
}

// Options configures a Controller.
type Options struct {
	AgentID    string
	SessionID  string // empty generates a fresh session-<uuid>
	EntryLimit int
}

// Controller owns the console state. It is safe for concurrent use by front
// ends, voice callbacks and background sends.
type Controller struct {
	backend    Backend
	session    voice.Session
	microphone voice.Microphone
	agentID    string
	sessionID  string
	entryLimit int

	mu       sync.RWMutex
	messages []chat.Message
	pending  int

	auditVisible bool
	auditLog     *audit.Log
	latest       *audit.LatestProfile

	cronMu sync.Mutex
	cron   *rcron.Cron

	events *broker
}

// New creates a controller with an empty log and a hidden audit panel.
func New(backend Backend, session voice.Session, mic voice.Microphone, opts Options) *Controller {
	limit := opts.EntryLimit
	if limit <= 0 || limit > DefaultEntryLimit {
		limit = DefaultEntryLimit
	}

	return &Controller{
		backend:    backend,
		session:    session,
		microphone: mic,
		agentID:    opts.AgentID,
		sessionID:  chat.ResolveSessionID(opts.SessionID),
		entryLimit: limit,
		messages:   make([]chat.Message, 0, 16),
		events:     newBroker(),
	}
}

// SessionID returns the identifier used for every text exchange.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Messages returns a copy of the conversation log in append order.
func (c *Controller) Messages() []chat.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copied := make([]chat.Message, len(c.messages))
	copy(copied, c.messages)
	return copied
}

// Loading reports whether a text exchange is awaiting its reply.
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending > 0
}

// Snapshot is the console state rendered by front ends.
type Snapshot struct {
	SessionID string            `json:"sessionId"`
	Status    voicemodel.Status `json:"status"`
	Speaking  bool              `json:"speaking"`
	Loading   bool              `json:"loading"`
	Messages  []chat.Message    `json:"messages"`
}

// Snapshot captures the current console state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		SessionID: c.sessionID,
		Status:    c.Status(),
		Speaking:  c.Speaking(),
		Loading:   c.Loading(),
		Messages:  c.Messages(),
	}
}

// Subscribe registers for state change events. The returned func unsubscribes
// and closes the channel.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe()
}

// Close stops background work. The controller stays readable.
func (c *Controller) Close() {
	c.StopAutoRefresh()
	c.events.close()
}

// appendMessage publishes under c.mu so subscribers see messages in log
// order. The broker never takes c.mu and publish never blocks.
func (c *Controller) appendMessage(role chat.Role, text string) chat.Message {
	msg := chat.Message{Role: role, Text: text, CreatedAt: time.Now().UTC()}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, msg)
	c.events.publish(Event{Type: EventMessage, Data: msg})
	return msg
}
