package console

import (
	"context"
	"log"
	"strings"

	"github.com/zhouzirui/advisor-console/internal/model/chat"
)

// Send performs one text exchange and blocks until it settles. Blank input is
// ignored and reported as false.
func (c *Controller) Send(ctx context.Context, input string) bool {
	if !c.beginSend(input) {
		return false
	}
	c.finishSend(ctx, input)
	return true
}

// SendAsync starts a text exchange without blocking. The user message and the
// loading flag are in place when it returns; the channel closes once the
// reply or error message has been appended.
func (c *Controller) SendAsync(input string) <-chan struct{} {
	done := make(chan struct{})
	if !c.beginSend(input) {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		c.finishSend(context.Background(), input)
	}()
	return done
}

func (c *Controller) beginSend(input string) bool {
	if strings.TrimSpace(input) == "" {
		return false
	}

	c.appendMessage(chat.RoleUser, input)
	c.adjustPending(1)
	return true
}

func (c *Controller) finishSend(ctx context.Context, input string) {
	defer c.adjustPending(-1)

	reply, err := c.backend.Chat(ctx, c.sessionID, input)
	if err != nil {
		log.Printf("[console] text exchange failed for session=%s: %v", c.sessionID, err)
		c.appendMessage(chat.RoleAssistant, "Error: "+err.Error())
		return
	}
	c.appendMessage(chat.RoleAssistant, reply)
}

// adjustPending publishes a loading event when the flag flips.
func (c *Controller) adjustPending(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.pending > 0
	c.pending += delta
	if after := c.pending > 0; before != after {
		c.events.publish(Event{Type: EventLoading, Data: after})
	}
}
