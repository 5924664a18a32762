package bootstrap

import (
	"go.uber.org/zap"

	"echopilot/internal/audio"
	"echopilot/internal/config"
	"echopilot/internal/ports"
	"echopilot/internal/transport"
	"echopilot/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Coordinator *usecase.SessionCoordinator
	Config      config.Config
}

// Build wires all backend dependencies for the current runtime.
func Build(sink ports.EventSink, logger *zap.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	engine := audio.NewEngine(
		audio.NewFFmpegCapture(cfg.Audio.RecorderCommand),
		audio.EngineConfig{
			Mic: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.MicDevice,
			},
			Surface: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.SurfaceDevice,
			},
			ChunkInterval: cfg.Capture.ChunkInterval,
			ProbeTimeout:  cfg.Capture.ProbeTimeout,
		},
		logger.Named("audio"),
	)

	client := transport.NewClient(
		transport.Config{
			URL:            cfg.Backend.URL,
			ReconnectDelay: cfg.Backend.ReconnectDelay,
			DialTimeout:    cfg.Backend.ConnectTimeout,
		},
		logger.Named("transport"),
	)

	coordinator := usecase.NewSessionCoordinator(
		engine,
		client,
		sink,
		logger.Named("session"),
		usecase.Config{ConnectTimeout: cfg.Backend.ConnectTimeout},
	)

	return Services{Coordinator: coordinator, Config: cfg}, nil
}
