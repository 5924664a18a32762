package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"echopilot/internal/domain"
	"echopilot/internal/ports"
)

// EngineConfig controls capture cadence and source selection.
type EngineConfig struct {
	Mic           ports.AudioConfig
	Surface       ports.AudioConfig
	ChunkInterval time.Duration
	ProbeTimeout  time.Duration
}

// Engine acquires an audio source and turns it into fixed-cadence encoded
// chunks plus a normalized loudness signal.
//
// The engine drains PCM from the source continuously from acquisition
// onward so the capture pipe never backs up; bytes only reach the flush
// buffer while recording and not paused.
type Engine struct {
	capture ports.AudioCapture
	cfg     EngineConfig
	logger  *zap.Logger

	mu        sync.Mutex
	state     domain.EngineState
	session   ports.AudioSession
	label     string
	closing   bool
	recording bool
	paused    bool
	pcmBuf    []byte
	onChunk   func(domain.AudioChunk)
	flushStop chan struct{}

	level atomic.Uint64
}

func NewEngine(capture ports.AudioCapture, cfg EngineConfig, logger *zap.Logger) *Engine {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = 500 * time.Millisecond
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 1500 * time.Millisecond
	}
	return &Engine{
		capture: capture,
		cfg:     cfg,
		logger:  logger,
		state:   domain.EngineStateIdle,
	}
}

// RequestAccess acquires the requested source kind. On success the engine
// is ready and exposes a source label; on failure nothing stays acquired.
func (e *Engine) RequestAccess(ctx context.Context, kind domain.SourceKind) error {
	e.mu.Lock()
	switch e.state {
	case domain.EngineStateRequesting, domain.EngineStateRecording, domain.EngineStatePaused:
		e.mu.Unlock()
		return fmt.Errorf("cannot acquire audio source while %s", e.state)
	}
	previous := e.session
	e.session = nil
	e.state = domain.EngineStateRequesting
	e.closing = false
	e.mu.Unlock()

	if previous != nil {
		_ = previous.Stop()
	}

	session, err := e.acquire(ctx, kind)
	if err != nil {
		e.mu.Lock()
		e.state = domain.EngineStateError
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.session = session
	e.label = session.Label()
	e.state = domain.EngineStateReady
	e.mu.Unlock()

	go e.drainLoop(session)
	e.logger.Info("audio source acquired",
		zap.String("kind", string(kind)),
		zap.String("label", session.Label()),
	)
	return nil
}

func (e *Engine) acquire(ctx context.Context, kind domain.SourceKind) (ports.AudioSession, error) {
	switch kind {
	case domain.SourceMicrophone:
		session, err := e.capture.Start(ctx, e.cfg.Mic)
		if err != nil {
			return nil, classifyMicError(err)
		}
		return session, nil

	case domain.SourceCapturedSurface:
		return e.acquireSurface(ctx)

	case domain.SourceMixed:
		mic, err := e.capture.Start(ctx, e.cfg.Mic)
		if err != nil {
			return nil, classifyMicError(err)
		}
		surface, err := e.acquireSurface(ctx)
		if err != nil {
			_ = mic.Stop()
			return nil, err
		}
		return newMixedSession(mic, surface), nil

	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

// acquireSurface captures a monitor source and verifies it actually carries
// audio: a surface that never produces PCM within the probe window is the
// moral equivalent of a screen share with audio left unticked.
func (e *Engine) acquireSurface(ctx context.Context) (ports.AudioSession, error) {
	session, err := e.capture.Start(ctx, e.cfg.Surface)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoAudioTrack, err)
	}

	if err := probeFirstRead(session, e.cfg.ProbeTimeout); err != nil {
		_ = session.Stop()
		return nil, err
	}
	return session, nil
}

func probeFirstRead(session ports.AudioSession, timeout time.Duration) error {
	read := make(chan error, 1)
	go func() {
		buf := make([]byte, 512)
		n, err := session.Read(buf)
		if n > 0 {
			read <- nil
			return
		}
		if err == nil {
			err = io.EOF
		}
		read <- err
	}()

	select {
	case err := <-read:
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrNoAudioTrack, err)
		}
		return nil
	case <-time.After(timeout):
		return domain.ErrNoAudioTrack
	}
}

func classifyMicError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission denied") || strings.Contains(msg, "access denied") {
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}
	return fmt.Errorf("microphone capture failed: %w", err)
}

// StartRecording begins periodic chunk flushing. Returns false when no
// source is acquired.
func (e *Engine) StartRecording(onChunk func(domain.AudioChunk)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != domain.EngineStateReady || e.session == nil {
		return false
	}

	e.state = domain.EngineStateRecording
	e.recording = true
	e.paused = false
	e.pcmBuf = nil
	e.onChunk = onChunk
	e.flushStop = make(chan struct{})
	go e.flushLoop(e.flushStop)
	return true
}

// StopRecording halts chunk flushing and zeroes the loudness signal.
// Idempotent.
func (e *Engine) StopRecording() {
	e.mu.Lock()
	if !e.recording {
		e.mu.Unlock()
		return
	}
	e.recording = false
	e.paused = false
	e.pcmBuf = nil
	e.onChunk = nil
	close(e.flushStop)
	e.flushStop = nil
	if e.session != nil {
		e.state = domain.EngineStateReady
	}
	e.mu.Unlock()

	e.setLevel(0)
}

// Pause suspends chunk flushing without releasing the source.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.recording && !e.paused {
		e.paused = true
		e.pcmBuf = nil
		e.state = domain.EngineStatePaused
	}
	e.mu.Unlock()
	e.setLevel(0)
}

// Resume continues chunk flushing after a Pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.recording && e.paused {
		e.paused = false
		e.state = domain.EngineStateRecording
	}
	e.mu.Unlock()
}

// Cleanup releases every acquired resource and returns the engine to idle.
// Safe to call any number of times, from any state.
func (e *Engine) Cleanup() {
	e.StopRecording()

	e.mu.Lock()
	session := e.session
	e.session = nil
	e.label = ""
	e.closing = true
	e.state = domain.EngineStateIdle
	e.mu.Unlock()

	if session != nil {
		_ = session.Stop()
	}
	e.setLevel(0)
}

func (e *Engine) State() domain.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) SourceLabel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.label
}

// Level reports instantaneous loudness normalized to [0,1]. The UI polls
// this at display-refresh cadence.
func (e *Engine) Level() float64 {
	return math.Float64frombits(e.level.Load())
}

func (e *Engine) setLevel(level float64) {
	e.level.Store(math.Float64bits(level))
}

func (e *Engine) drainLoop(session ports.AudioSession) {
	buf := make([]byte, 4096)
	for {
		n, err := session.Read(buf)
		if n > 0 {
			e.ingest(buf[:n])
		}
		if err != nil {
			e.mu.Lock()
			closing := e.closing || e.session != session
			if !closing {
				e.state = domain.EngineStateError
			}
			e.mu.Unlock()
			e.setLevel(0)

			if !closing && !errors.Is(err, io.EOF) {
				e.logger.Warn("audio capture ended unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

func (e *Engine) ingest(pcm []byte) {
	e.mu.Lock()
	active := e.recording && !e.paused
	if active {
		e.pcmBuf = append(e.pcmBuf, pcm...)
	}
	e.mu.Unlock()

	if active {
		e.setLevel(rmsLevel(pcm))
	}
}

func (e *Engine) flushLoop(stop chan struct{}) {
	ticker := time.NewTicker(e.cfg.ChunkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.flush()
		case <-stop:
			return
		}
	}
}

func (e *Engine) flush() {
	e.mu.Lock()
	if !e.recording || e.paused || len(e.pcmBuf) == 0 {
		e.mu.Unlock()
		return
	}
	data := e.pcmBuf
	e.pcmBuf = nil
	onChunk := e.onChunk
	e.mu.Unlock()

	if onChunk != nil {
		onChunk(domain.AudioChunk{Data: data, CapturedAt: time.Now()})
	}
}

// rmsLevel computes root-mean-square energy of s16le PCM, scaled to [0,1].
func rmsLevel(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) / 32768
		sum += s * s
	}
	level := math.Sqrt(sum / float64(samples))
	if level > 1 {
		level = 1
	}
	return level
}
