package voice

import (
	"context"
	"errors"

	voicemodel "github.com/zhouzirui/advisor-console/internal/model/voice"
)

var (
	ErrAlreadyStarted   = errors.New("voice session already started")
	ErrMicrophoneDenied = errors.New("microphone permission denied")
)

// Callbacks receive notifications from a running session. They are invoked from
// the session's reader goroutine; any of them may be nil.
type Callbacks struct {
	OnConnect    func(conversationID string)
	OnDisconnect func()
	OnMessage    func(voicemodel.Transcript)
	OnError      func(error)
}

func (c Callbacks) connect(id string) {
	if c.OnConnect != nil {
		c.OnConnect(id)
	}
}

func (c Callbacks) disconnect() {
	if c.OnDisconnect != nil {
		c.OnDisconnect()
	}
}

func (c Callbacks) message(t voicemodel.Transcript) {
	if c.OnMessage != nil {
		c.OnMessage(t)
	}
}

func (c Callbacks) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// Session is the voice capability used by the console.
type Session interface {
	Start(ctx context.Context, agentID string, cb Callbacks) error
	End(ctx context.Context) error
	Status() voicemodel.Status
	Speaking() bool
}

// Microphone grants access to audio capture.
type Microphone interface {
	Acquire(ctx context.Context) error
}

// StaticMicrophone answers every request the same way. The console does not
// capture audio itself, so this stands in for the platform permission prompt.
type StaticMicrophone struct {
	Granted bool
}

// Acquire implements Microphone.
func (m StaticMicrophone) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.Granted {
		return ErrMicrophoneDenied
	}
	return nil
}
