package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the desktop client.
type Config struct {
	Backend BackendConfig
	Audio   AudioConfig
	Capture CaptureConfig
	Debug   bool
}

type BackendConfig struct {
	URL            string
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	MicDevice       string
	SurfaceDevice   string
	SampleRate      int
	Channels        int
}

type CaptureConfig struct {
	ChunkInterval time.Duration
	ProbeTimeout  time.Duration
}

// Load resolves configuration from environment variables and defaults.
func Load() (Config, error) {
	cfg := Config{
		Backend: BackendConfig{
			URL:            envOrDefault("ECHOPILOT_BACKEND_URL", "ws://localhost:8000/ws/interview"),
			ConnectTimeout: time.Duration(envOrDefaultInt("ECHOPILOT_CONNECT_TIMEOUT_MS", 10000)) * time.Millisecond,
			ReconnectDelay: time.Duration(envOrDefaultInt("ECHOPILOT_RECONNECT_DELAY_MS", 3000)) * time.Millisecond,
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("ECHOPILOT_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("ECHOPILOT_AUDIO_INPUT_FORMAT", "pulse"),
			MicDevice:       envOrDefault("ECHOPILOT_MIC_DEVICE", "default"),
			SurfaceDevice:   envOrDefault("ECHOPILOT_SURFACE_DEVICE", "@DEFAULT_MONITOR@"),
			SampleRate:      envOrDefaultInt("ECHOPILOT_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("ECHOPILOT_CHANNELS", 1),
		},
		Capture: CaptureConfig{
			ChunkInterval: time.Duration(envOrDefaultInt("ECHOPILOT_CHUNK_INTERVAL_MS", 500)) * time.Millisecond,
			ProbeTimeout:  time.Duration(envOrDefaultInt("ECHOPILOT_PROBE_TIMEOUT_MS", 1500)) * time.Millisecond,
		},
		Debug: envOrDefaultBool("ECHOPILOT_DEBUG", false),
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Capture.ChunkInterval < 100*time.Millisecond {
		cfg.Capture.ChunkInterval = 500 * time.Millisecond
	}
	if cfg.Backend.ReconnectDelay <= 0 {
		cfg.Backend.ReconnectDelay = 3 * time.Second
	}
	if cfg.Backend.ConnectTimeout <= 0 {
		cfg.Backend.ConnectTimeout = 10 * time.Second
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
