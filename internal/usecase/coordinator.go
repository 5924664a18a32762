package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"echopilot/internal/domain"
	"echopilot/internal/ports"
	"echopilot/internal/transport"
)

var (
	ErrNoActiveSession   = errors.New("no active interview session")
	ErrSessionInProgress = errors.New("an interview session is already in progress")
	ErrConnectionFailed  = errors.New("could not establish backend connection")
	ErrTransportNotReady = errors.New("transport is not connected")
	ErrRecordingNotReady = errors.New("audio engine refused to start recording")
)

// Config controls coordinator timing.
type Config struct {
	ConnectTimeout time.Duration
}

// SessionCoordinator owns the Session: it bridges capture engine output to
// the transport, folds inbound events into session state, and drives the
// idle → awaiting_permission → connecting → active → ended lifecycle.
//
// All mutation funnels through the coordinator's operations; the UI only
// ever reads snapshots.
type SessionCoordinator struct {
	engine    ports.CaptureEngine
	transport ports.Transport
	events    ports.EventSink
	logger    *zap.Logger
	cfg       Config

	mu         sync.Mutex
	session    sessionState
	connection domain.ConnectionState
}

func NewSessionCoordinator(
	engine ports.CaptureEngine,
	tr ports.Transport,
	events ports.EventSink,
	logger *zap.Logger,
	cfg Config,
) *SessionCoordinator {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	c := &SessionCoordinator{
		engine:     engine,
		transport:  tr,
		events:     events,
		logger:     logger,
		cfg:        cfg,
		connection: tr.State(),
	}
	c.session.phase = domain.SessionPhaseIdle
	go c.consumeEvents()
	return c
}

// consumeEvents is the single consumer of the transport's ordered event
// stream. Each event is fully folded before the next is taken, so event
// handling is never concurrent with itself.
func (c *SessionCoordinator) consumeEvents() {
	for event := range c.transport.Events() {
		c.handleEvent(event)
	}
}

func (c *SessionCoordinator) handleEvent(event domain.InboundEvent) {
	switch ev := event.(type) {
	case domain.Transcription:
		c.foldTranscription(ev)
	case domain.AnswerUpdate:
		c.foldAnswer(ev)
	case domain.StatusUpdate:
		c.foldStatus(ev)
	case domain.BackendFault:
		c.events.SessionError(domain.ErrorCodeBackend, ev.Message)
	case domain.ConnectionChange:
		c.foldConnection(ev)
	}
}

func (c *SessionCoordinator) foldTranscription(ev domain.Transcription) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}

	c.mu.Lock()
	if ev.IsFinal {
		c.session.transcript = append(c.session.transcript, text)
		c.session.interim = ""
		full := make([]string, len(c.session.transcript))
		copy(full, c.session.transcript)
		c.mu.Unlock()
		c.events.TranscriptAppended(text, full)
		return
	}
	// Each partial carries the full current hypothesis; replace wholesale.
	c.session.interim = text
	c.mu.Unlock()
	c.events.InterimTranscript(text)
}

// foldAnswer is a pure last-write-wins replace: every ai_response frame
// carries the full answer-so-far, so no local concatenation happens.
func (c *SessionCoordinator) foldAnswer(ev domain.AnswerUpdate) {
	answer := domain.Answer{
		Question:   ev.Question,
		Text:       ev.Text,
		KeyPoints:  ev.KeyPoints,
		InProgress: !ev.IsComplete,
	}

	c.mu.Lock()
	if answer.Question == "" {
		answer.Question = c.session.answer.Question
	}
	c.session.answer = answer
	c.mu.Unlock()
	c.events.AnswerUpdated(answer)
}

func (c *SessionCoordinator) foldStatus(ev domain.StatusUpdate) {
	switch ev.Status {
	case domain.StatusSessionStarted:
		c.mu.Lock()
		if c.session.phase != domain.SessionPhaseConnecting {
			c.mu.Unlock()
			return
		}
		c.session.phase = domain.SessionPhaseActive
		c.mu.Unlock()
		c.events.SessionPhaseChanged(domain.SessionPhaseActive)
		c.logger.Info("session confirmed by backend", zap.String("message", ev.Message))

	case domain.StatusSessionEnded:
		c.mu.Lock()
		if c.session.phase != domain.SessionPhaseActive {
			c.mu.Unlock()
			return
		}
		c.session.phase = domain.SessionPhaseEnded
		c.mu.Unlock()
		c.events.SessionPhaseChanged(domain.SessionPhaseEnded)

	default:
		c.logger.Debug("backend status", zap.String("status", ev.Status), zap.String("message", ev.Message))
	}
}

// foldConnection holds the session phase steady across connectivity drops:
// the transport retries on its own while the UI shows degraded status.
func (c *SessionCoordinator) foldConnection(ev domain.ConnectionChange) {
	c.mu.Lock()
	c.connection = ev.State
	c.mu.Unlock()
	c.events.ConnectionChanged(ev.State)
}

// StartInterview acquires the audio source, connects the transport, starts
// the session, and begins streaming chunks. Any failure returns the
// coordinator fully to an error phase with every resource released.
func (c *SessionCoordinator) StartInterview(ctx context.Context, kind domain.SourceKind) error {
	c.mu.Lock()
	switch c.session.phase {
	case domain.SessionPhaseAwaitingPermission, domain.SessionPhaseConnecting, domain.SessionPhaseActive:
		c.mu.Unlock()
		return ErrSessionInProgress
	}
	c.session.phase = domain.SessionPhaseAwaitingPermission
	c.mu.Unlock()
	c.events.SessionPhaseChanged(domain.SessionPhaseAwaitingPermission)

	if err := c.engine.RequestAccess(ctx, kind); err != nil {
		c.failStart(acquisitionErrorCode(err), err)
		return err
	}

	c.setPhase(domain.SessionPhaseConnecting)

	if c.transport.State() != domain.ConnectionConnected {
		connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		err := c.transport.Connect(connectCtx)
		cancel()
		if err != nil {
			c.engine.Cleanup()
			c.failStart(domain.ErrorCodeConnection, err)
			return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
	}

	c.mu.Lock()
	c.session.reset()
	c.session.id = uuid.NewString()
	c.mu.Unlock()
	c.events.SessionCleared()

	if !c.transport.Send(transport.TypeStartSession, nil) {
		c.engine.Cleanup()
		c.failStart(domain.ErrorCodeConnection, ErrTransportNotReady)
		return ErrTransportNotReady
	}

	// Chunks flow immediately, even before the backend acknowledges
	// session start; the backend buffers early audio server-side.
	if !c.engine.StartRecording(c.forwardChunk) {
		c.engine.Cleanup()
		c.failStart(domain.ErrorCodeAudioDevice, ErrRecordingNotReady)
		return ErrRecordingNotReady
	}

	// Phase stays connecting until the backend's session_started status.
	return nil
}

// forwardChunk ships one capture interval to the backend, fire-and-forget.
// A send refused by a disconnected transport is dropped; chunks are never
// buffered or retried client-side.
func (c *SessionCoordinator) forwardChunk(chunk domain.AudioChunk) {
	payload := map[string]any{
		"data": base64.StdEncoding.EncodeToString(chunk.Data),
	}
	if !c.transport.Send(transport.TypeAudioChunk, payload) {
		c.logger.Debug("dropped audio chunk while disconnected",
			zap.Int("bytes", len(chunk.Data)),
			zap.Time("capturedAt", chunk.CapturedAt),
		)
	}
}

// EndInterview stops capture and ends the session. The transport stays
// connected; session termination and disconnection are independent.
func (c *SessionCoordinator) EndInterview() error {
	c.mu.Lock()
	phase := c.session.phase
	if phase != domain.SessionPhaseActive && phase != domain.SessionPhaseConnecting {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	c.session.phase = domain.SessionPhaseEnded
	c.mu.Unlock()

	c.engine.StopRecording()
	c.transport.Send(transport.TypeEndSession, nil)
	c.events.SessionPhaseChanged(domain.SessionPhaseEnded)
	return nil
}

// RequestAnswer asks the backend for an answer to the given question. The
// result arrives asynchronously via ai_response events; a new request
// supersedes any answer still in progress.
func (c *SessionCoordinator) RequestAnswer(question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return errors.New("question is empty")
	}

	if !c.transport.Send(transport.TypeGenerateAnswer, map[string]any{"question": question}) {
		return ErrTransportNotReady
	}

	answer := domain.Answer{Question: question, InProgress: true}
	c.mu.Lock()
	c.session.answer = answer
	c.mu.Unlock()
	c.events.AnswerUpdated(answer)
	return nil
}

// ClearSession forgets accumulated transcript and answer state without
// touching the connection or the session phase.
func (c *SessionCoordinator) ClearSession() {
	c.mu.Lock()
	c.session.reset()
	c.mu.Unlock()
	c.events.SessionCleared()
}

// PauseCapture suspends chunk flushing without releasing the source.
func (c *SessionCoordinator) PauseCapture() {
	c.engine.Pause()
}

// ResumeCapture continues chunk flushing after a pause.
func (c *SessionCoordinator) ResumeCapture() {
	c.engine.Resume()
}

// Snapshot returns a read-only copy of session state for the UI.
func (c *SessionCoordinator) Snapshot() domain.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.snapshot(c.connection)
}

// TranscriptText returns the finalized transcript joined by paragraphs.
func (c *SessionCoordinator) TranscriptText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.transcriptText()
}

// AudioLevel reports the engine's normalized loudness for UI polling.
func (c *SessionCoordinator) AudioLevel() float64 {
	return c.engine.Level()
}

// SourceLabel reports a human-readable label of the acquired source.
func (c *SessionCoordinator) SourceLabel() string {
	return c.engine.SourceLabel()
}

// Shutdown releases capture resources and closes the transport. Invoked on
// application teardown so no microphone or surface stream outlives the UI.
func (c *SessionCoordinator) Shutdown() {
	c.engine.Cleanup()
	c.transport.Disconnect()
}

func (c *SessionCoordinator) setPhase(phase domain.SessionPhase) {
	c.mu.Lock()
	c.session.phase = phase
	c.mu.Unlock()
	c.events.SessionPhaseChanged(phase)
}

func (c *SessionCoordinator) failStart(code domain.ErrorCode, err error) {
	c.setPhase(domain.SessionPhaseError)
	c.events.SessionError(code, err.Error())
	c.logger.Warn("interview start failed", zap.String("code", string(code)), zap.Error(err))
}

func acquisitionErrorCode(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, domain.ErrNoAudioTrack):
		return domain.ErrorCodeNoAudioTrack
	case errors.Is(err, domain.ErrPermissionDenied):
		return domain.ErrorCodePermissionDenied
	default:
		return domain.ErrorCodeAudioDevice
	}
}
