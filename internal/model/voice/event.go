package voice

import "encoding/json"

// Event types exchanged with the voice agent.
const (
	EventInitiationClientData = "conversation_initiation_client_data"
	EventInitiationMetadata   = "conversation_initiation_metadata"
	EventUserTranscript       = "user_transcript"
	EventAgentResponse        = "agent_response"
	EventAudio                = "audio"
	EventInterruption         = "interruption"
	EventPing                 = "ping"
	EventPong                 = "pong"
)

// InboundEvent is the envelope of every message the agent sends. Only the
// transcript-level payloads are decoded.
type InboundEvent struct {
	Type string `json:"type"`

	InitiationMetadata *struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation_initiation_metadata_event,omitempty"`

	UserTranscription *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	AgentResponse *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	Ping *struct {
		EventID int64 `json:"event_id"`
		PingMS  int64 `json:"ping_ms"`
	} `json:"ping_event,omitempty"`

	Audio json.RawMessage `json:"audio_event,omitempty"`
}

// OutboundEvent is sent by the console to the agent.
type OutboundEvent struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id,omitempty"`
}
