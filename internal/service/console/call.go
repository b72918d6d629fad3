package console

import (
	"context"
	"errors"
	"log"

	"github.com/zhouzirui/advisor-console/internal/model/chat"
	voicemodel "github.com/zhouzirui/advisor-console/internal/model/voice"
	"github.com/zhouzirui/advisor-console/internal/service/voice"
)

var errVoiceUnavailable = errors.New("voice session not configured")

// CallState is the payload of status events.
type CallState struct {
	Status   voicemodel.Status `json:"status"`
	Speaking bool              `json:"speaking"`
}

// StartCall acquires the microphone and opens the voice session. Failures are
// logged and dropped; the caller sees them only through Status.
func (c *Controller) StartCall(ctx context.Context) {
	if err := c.startCall(ctx); err != nil {
		log.Printf("[console] failed to start call: %v", err)
	}
	c.publishStatus()
}

func (c *Controller) startCall(ctx context.Context) error {
	if c.session == nil {
		return errVoiceUnavailable
	}
	if c.microphone != nil {
		if err := c.microphone.Acquire(ctx); err != nil {
			return err
		}
	}
	return c.session.Start(ctx, c.agentID, c.voiceCallbacks())
}

// EndCall closes the voice session. Errors are logged and dropped.
func (c *Controller) EndCall(ctx context.Context) {
	if c.session == nil {
		return
	}
	if err := c.session.End(ctx); err != nil {
		log.Printf("[console] failed to end call: %v", err)
	}
	c.publishStatus()
}

// Status passes through the voice session status.
func (c *Controller) Status() voicemodel.Status {
	if c.session == nil {
		return voicemodel.StatusIdle
	}
	return c.session.Status()
}

// Speaking reports whether the agent is currently talking.
func (c *Controller) Speaking() bool {
	if c.session == nil {
		return false
	}
	return c.session.Speaking()
}

func (c *Controller) voiceCallbacks() voice.Callbacks {
	return voice.Callbacks{
		OnConnect: func(conversationID string) {
			log.Printf("[console] voice connected conversation=%s", conversationID)
			c.publishStatus()
		},
		OnDisconnect: func() {
			log.Printf("[console] voice disconnected")
			c.publishStatus()
		},
		OnMessage: func(t voicemodel.Transcript) {
			c.appendMessage(chat.RoleFromSource(t.Source), t.Message)
		},
		OnError: func(err error) {
			log.Printf("[console] voice error: %v", err)
		},
	}
}

func (c *Controller) publishStatus() {
	c.events.publish(Event{Type: EventStatus, Data: CallState{Status: c.Status(), Speaking: c.Speaking()}})
}
