package event

import "time"

// EventType represents the type of event carried on the per-call event bus
// (spec.md §9: "cyclic handler graphs via explicit interfaces and a single
// shared session event bus").
type EventType string

const (
	// Session lifecycle (C1)
	SessionOpened EventType = "session.opened"
	SessionClosed EventType = "session.closed"
	SessionError  EventType = "session.error"

	// Audio ingress (C2)
	SpeechStarted   EventType = "ingress.speech_started"
	SpeechSegment   EventType = "ingress.speech_segment"
	InterruptionHit EventType = "ingress.interruption"

	// Turn controller (C8)
	TurnUserStarted      EventType = "turn.user_started"
	TurnUserCompleted    EventType = "turn.user_completed"
	TurnThinkingPause    EventType = "turn.thinking_pause"
	TurnClarifying       EventType = "turn.clarifying"
	TurnAssistantStarted EventType = "turn.assistant_started"
	TurnAssistantEnded   EventType = "turn.assistant_ended"
	TurnInterrupted      EventType = "turn.interrupted"

	// STT adapter (C5)
	STTSegmentQueued  EventType = "stt.segment_queued"
	STTSegmentDropped EventType = "stt.segment_dropped"

	// Dialogue/TTS (C9, C10)
	DialogueChunkReady EventType = "dialogue.chunk_ready"
	DialogueToolCall   EventType = "dialogue.tool_call"
	TTSFirstByte       EventType = "tts.first_byte"
	TTSPlaybackDone    EventType = "tts.playback_done"

	// Playback controller (C11)
	PlaybackInterrupted EventType = "playback.interrupted"

	// Sentiment (C7)
	SentimentAlertRaised EventType = "sentiment.alert_raised"

	// Recording (C12)
	RecordingPersisted EventType = "recording.persisted"

	// Internal/system events
	HandlerPanic EventType = "handler.panic"
)

// SessionEvent is the payload carried by the bus for one occurrence of an
// EventType, grounded on the teacher's ConnectionEvent (builder-method
// pattern, optional Error).
type SessionEvent struct {
	Type      EventType   `json:"type"`
	CallID    string      `json:"call_id"`
	OrgID     string      `json:"org_id,omitempty"`
	AgentID   string      `json:"agent_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     error       `json:"error,omitempty"`
}

// TurnEventData accompanies turn.* events.
type TurnEventData struct {
	TurnID string  `json:"turn_id"`
	Role   string  `json:"role"`
	Text   string  `json:"text,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// PlaybackInterruptedData accompanies playback.interrupted.
type PlaybackInterruptedData struct {
	PlayedUntilMs int64 `json:"played_until_ms"`
}

// SentimentAlertData accompanies sentiment.alert_raised.
type SentimentAlertData struct {
	Label      string  `json:"label"`
	Score      float64 `json:"score"`
	TurnID     string  `json:"turn_id"`
}

// NewSessionEvent creates a new SessionEvent stamped with the current time.
func NewSessionEvent(eventType EventType, callID string) *SessionEvent {
	return &SessionEvent{
		Type:      eventType,
		CallID:    callID,
		Timestamp: time.Now(),
	}
}

func (e *SessionEvent) WithOrgID(orgID string) *SessionEvent {
	e.OrgID = orgID
	return e
}

func (e *SessionEvent) WithAgentID(agentID string) *SessionEvent {
	e.AgentID = agentID
	return e
}

func (e *SessionEvent) WithData(data interface{}) *SessionEvent {
	e.Data = data
	return e
}

func (e *SessionEvent) WithError(err error) *SessionEvent {
	e.Error = err
	return e
}

// IsError returns true if the event carries an error.
func (e *SessionEvent) IsError() bool {
	return e.Error != nil
}

// GetTurnData returns TurnEventData if the event carries it.
func (e *SessionEvent) GetTurnData() (*TurnEventData, bool) {
	data, ok := e.Data.(*TurnEventData)
	return data, ok
}

// GetSentimentAlertData returns SentimentAlertData if the event carries it.
func (e *SessionEvent) GetSentimentAlertData() (*SentimentAlertData, bool) {
	data, ok := e.Data.(*SentimentAlertData)
	return data, ok
}
