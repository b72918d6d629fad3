package voice

// Status is the call state reported by the voice session. The console passes
// it through unchanged.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusDisconnecting Status = "disconnecting"
	StatusDisconnected  Status = "disconnected"
)

// Active reports whether a call is in progress or being set up.
func (s Status) Active() bool {
	return s == StatusConnecting || s == StatusConnected
}

// Transcript is one finalized utterance heard on the call.
type Transcript struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}
