package domain

// InboundEvent is the closed set of events the backend (or the transport
// itself) can deliver. Dispatch is by type switch, so adding a variant
// forces every consumer to handle it.
type InboundEvent interface {
	inboundEvent()
}

// Transcription is a partial or finalized speech-to-text result. A partial
// event carries the backend's full current hypothesis, not a delta.
type Transcription struct {
	Text    string
	IsFinal bool
}

// AnswerUpdate carries the full answer-so-far for the current question.
// Consumers replace their answer state wholesale; no local concatenation.
type AnswerUpdate struct {
	Question   string
	Text       string
	KeyPoints  []string
	IsComplete bool
}

// SessionStatus values the backend acknowledges with.
const (
	StatusSessionStarted = "session_started"
	StatusSessionEnded   = "session_ended"
)

// StatusUpdate is a session lifecycle acknowledgment from the backend.
type StatusUpdate struct {
	Status  string
	Message string
}

// BackendFault is a backend-reported error, non-fatal to the connection.
type BackendFault struct {
	Message string
}

// ConnectionChange is emitted by the transport when connectivity shifts.
type ConnectionChange struct {
	State ConnectionState
}

func (Transcription) inboundEvent()    {}
func (AnswerUpdate) inboundEvent()     {}
func (StatusUpdate) inboundEvent()     {}
func (BackendFault) inboundEvent()     {}
func (ConnectionChange) inboundEvent() {}
