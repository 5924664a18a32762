package domain

import (
	"errors"
	"time"
)

// SessionPhase models the interview session lifecycle.
type SessionPhase string

const (
	SessionPhaseIdle               SessionPhase = "idle"
	SessionPhaseAwaitingPermission SessionPhase = "awaiting_permission"
	SessionPhaseConnecting         SessionPhase = "connecting"
	SessionPhaseActive             SessionPhase = "active"
	SessionPhaseEnded              SessionPhase = "ended"
	SessionPhaseError              SessionPhase = "error"
)

// ConnectionState models transport connectivity, distinct from SessionPhase.
// An active session survives a connectivity drop while the transport retries.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionErrored      ConnectionState = "errored"
)

// EngineState models the audio capture engine lifecycle.
type EngineState string

const (
	EngineStateIdle       EngineState = "idle"
	EngineStateRequesting EngineState = "requesting"
	EngineStateReady      EngineState = "ready"
	EngineStateRecording  EngineState = "recording"
	EngineStatePaused     EngineState = "paused"
	EngineStateError      EngineState = "error"
)

// SourceKind selects which audio source the engine acquires.
type SourceKind string

const (
	SourceMicrophone      SourceKind = "microphone"
	SourceCapturedSurface SourceKind = "captured_surface"
	SourceMixed           SourceKind = "mixed"
)

// ErrorCode identifies failure classes surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup          ErrorCode = "startup"
	ErrorCodePermissionDenied ErrorCode = "permission_denied"
	ErrorCodeNoAudioTrack     ErrorCode = "no_audio_track"
	ErrorCodeAudioDevice      ErrorCode = "audio_device"
	ErrorCodeConnection       ErrorCode = "connection"
	ErrorCodeBackend          ErrorCode = "backend"
	ErrorCodeClipboard        ErrorCode = "clipboard"
)

// Sentinel errors for audio acquisition failure classes. Acquisition errors
// are terminal for the current start attempt only; the caller may retry.
var (
	// ErrPermissionDenied means the user or the OS refused audio access.
	ErrPermissionDenied = errors.New("audio access denied")
	// ErrNoAudioTrack means a captured surface carried no audio. The user
	// must re-consent with audio sharing enabled.
	ErrNoAudioTrack = errors.New("captured surface has no audio track")
)

// AudioChunk is one capture-interval's worth of encoded audio. Chunks are
// fire-and-forget: created on flush, handed to the transport, discarded.
type AudioChunk struct {
	Data       []byte
	CapturedAt time.Time
}

// Answer holds the full current state of an in-progress or completed AI
// answer. Each AnswerUpdate replaces it wholesale.
type Answer struct {
	Question   string   `json:"question"`
	Text       string   `json:"text"`
	KeyPoints  []string `json:"keyPoints"`
	InProgress bool     `json:"inProgress"`
}

// SessionSnapshot is a read-only copy of session state for the UI.
type SessionSnapshot struct {
	ID         string          `json:"id"`
	Phase      SessionPhase    `json:"phase"`
	Transcript []string        `json:"transcript"`
	Interim    string          `json:"interim"`
	Answer     Answer          `json:"answer"`
	Connection ConnectionState `json:"connection"`
}
