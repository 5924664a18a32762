package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"echopilot/internal/bootstrap"
	"echopilot/internal/config"
	"echopilot/internal/domain"
	"echopilot/internal/usecase"
)

const (
	eventPhase      = "echopilot:phase"
	eventConnection = "echopilot:connection"
	eventInterim    = "echopilot:interim"
	eventTranscript = "echopilot:transcript"
	eventAnswer     = "echopilot:answer"
	eventCleared    = "echopilot:cleared"
	eventError      = "echopilot:error"
)

// App is the Wails application root. It implements ports.EventSink so the
// coordinator's state changes stream straight to the frontend.
type App struct {
	ctx    context.Context
	logger *zap.Logger

	coordinator *usecase.SessionCoordinator
	clipboard   *wailsClipboard
	cfg         config.Config
	bootErr     error
}

func NewApp(logger *zap.Logger) *App {
	return &App{logger: logger, clipboard: &wailsClipboard{}}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a.logger)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.coordinator = services.Coordinator
	a.SessionPhaseChanged(domain.SessionPhaseIdle)
}

func (a *App) shutdown(_ context.Context) {
	if a.coordinator != nil {
		a.coordinator.Shutdown()
	}
	_ = a.logger.Sync()
}

// StartInterview acquires the chosen audio source and begins a session.
func (a *App) StartInterview(sourceKind string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	kind, err := parseSourceKind(sourceKind)
	if err != nil {
		return err
	}
	return a.coordinator.StartInterview(a.ctx, kind)
}

// EndInterview stops capture and ends the current session.
func (a *App) EndInterview() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.coordinator.EndInterview(); err != nil {
		if errors.Is(err, usecase.ErrNoActiveSession) {
			return nil
		}
		return err
	}
	return nil
}

// RequestAnswer asks the backend to generate an answer for the given
// question text. The answer streams back asynchronously.
func (a *App) RequestAnswer(question string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.coordinator.RequestAnswer(question)
}

// ClearSession forgets transcript and answer state locally.
func (a *App) ClearSession() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.coordinator.ClearSession()
	return nil
}

// PauseCapture suspends audio streaming without releasing the source.
func (a *App) PauseCapture() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.coordinator.PauseCapture()
	return nil
}

// ResumeCapture continues audio streaming after a pause.
func (a *App) ResumeCapture() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.coordinator.ResumeCapture()
	return nil
}

// GetSnapshot returns the current session state for rendering.
func (a *App) GetSnapshot() domain.SessionSnapshot {
	if a.coordinator == nil {
		phase := domain.SessionPhaseIdle
		if a.bootErr != nil {
			phase = domain.SessionPhaseError
		}
		return domain.SessionSnapshot{Phase: phase, Connection: domain.ConnectionDisconnected}
	}
	return a.coordinator.Snapshot()
}

// GetAudioLevel returns normalized loudness; the frontend polls this per
// animation frame to drive the level meter.
func (a *App) GetAudioLevel() float64 {
	if a.coordinator == nil {
		return 0
	}
	return a.coordinator.AudioLevel()
}

// CopyAnswer writes the current answer text to the system clipboard.
func (a *App) CopyAnswer() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	answer := a.coordinator.Snapshot().Answer
	if answer.Text == "" {
		return errors.New("no answer to copy")
	}
	if err := a.clipboard.SetText(a.ctx, answer.Text); err != nil {
		a.SessionError(domain.ErrorCodeClipboard, err.Error())
		return err
	}
	return nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"backendURL":    a.cfg.Backend.URL,
		"micDevice":     a.cfg.Audio.MicDevice,
		"surfaceDevice": a.cfg.Audio.SurfaceDevice,
		"sampleRate":    fmt.Sprintf("%d", a.cfg.Audio.SampleRate),
		"chunkInterval": a.cfg.Capture.ChunkInterval.String(),
		"sourceLabel":   a.sourceLabel(),
	}
}

func (a *App) sourceLabel() string {
	if a.coordinator == nil {
		return ""
	}
	return a.coordinator.SourceLabel()
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.coordinator == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionPhaseChanged emits session lifecycle updates to the frontend.
func (a *App) SessionPhaseChanged(phase domain.SessionPhase) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPhase, map[string]string{
		"phase":   string(phase),
		"message": phaseMessage(phase),
	})
}

// ConnectionChanged emits transport connectivity updates, including the
// degraded indicator while the transport retries.
func (a *App) ConnectionChanged(state domain.ConnectionState) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventConnection, map[string]string{
		"state":   string(state),
		"message": connectionMessage(state),
	})
}

// InterimTranscript emits the current partial hypothesis.
func (a *App) InterimTranscript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventInterim, map[string]string{"text": text})
}

// TranscriptAppended emits a newly finalized utterance and the full
// transcript so far.
func (a *App) TranscriptAppended(entry string, transcript []string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]any{
		"entry":      entry,
		"transcript": transcript,
	})
}

// AnswerUpdated emits the full current answer state.
func (a *App) AnswerUpdated(answer domain.Answer) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventAnswer, answer)
}

// SessionCleared tells the frontend to drop rendered session content.
func (a *App) SessionCleared() {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventCleared)
}

// SessionError emits backend and device errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func parseSourceKind(raw string) (domain.SourceKind, error) {
	switch raw {
	case "microphone", "mic":
		return domain.SourceMicrophone, nil
	case "captured_surface", "surface", "tab":
		return domain.SourceCapturedSurface, nil
	case "mixed", "both":
		return domain.SourceMixed, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", raw)
	}
}

func phaseMessage(phase domain.SessionPhase) string {
	switch phase {
	case domain.SessionPhaseIdle:
		return "Ready to start"
	case domain.SessionPhaseAwaitingPermission:
		return "Waiting for audio access"
	case domain.SessionPhaseConnecting:
		return "Connecting to backend"
	case domain.SessionPhaseActive:
		return "Interview in progress"
	case domain.SessionPhaseEnded:
		return "Interview ended"
	case domain.SessionPhaseError:
		return "Something went wrong"
	default:
		return ""
	}
}

func connectionMessage(state domain.ConnectionState) string {
	switch state {
	case domain.ConnectionDisconnected:
		return "Disconnected"
	case domain.ConnectionConnecting:
		return "Connecting..."
	case domain.ConnectionConnected:
		return "Connected"
	case domain.ConnectionErrored:
		return "Connection lost; retrying"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermissionDenied:
		return "Audio access was denied"
	case domain.ErrorCodeNoAudioTrack:
		return "The shared surface has no audio; share again with audio enabled"
	case domain.ErrorCodeAudioDevice:
		return "Audio device error"
	case domain.ErrorCodeConnection:
		return "Could not reach the backend"
	case domain.ErrorCodeBackend:
		return "Backend reported an error"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
