package ports

import (
	"context"
	"io"

	"echopilot/internal/domain"
)

// AudioConfig describes how a single audio source should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session for one source.
type AudioSession interface {
	io.ReadCloser
	Stop() error
	Label() string
}

// AudioCapture creates capture sessions for concrete devices.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// CaptureEngine turns an acquired audio source into fixed-cadence encoded
// chunks and a normalized instantaneous loudness signal.
type CaptureEngine interface {
	RequestAccess(ctx context.Context, kind domain.SourceKind) error
	StartRecording(onChunk func(domain.AudioChunk)) bool
	StopRecording()
	Pause()
	Resume()
	Cleanup()
	State() domain.EngineState
	SourceLabel() string
	Level() float64
}

// Transport is the duplex message channel to the backend.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Send(msgType string, payload map[string]any) bool
	Events() <-chan domain.InboundEvent
	State() domain.ConnectionState
}

// EventSink emits session state and events to the UI.
type EventSink interface {
	SessionPhaseChanged(phase domain.SessionPhase)
	ConnectionChanged(state domain.ConnectionState)
	InterimTranscript(text string)
	TranscriptAppended(entry string, transcript []string)
	AnswerUpdated(answer domain.Answer)
	SessionCleared()
	SessionError(code domain.ErrorCode, detail string)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}
