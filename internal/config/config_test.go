package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend.URL != "ws://localhost:8000/ws/interview" {
		t.Fatalf("unexpected backend url: %q", cfg.Backend.URL)
	}
	if cfg.Backend.ConnectTimeout != 10*time.Second {
		t.Fatalf("unexpected connect timeout: %v", cfg.Backend.ConnectTimeout)
	}
	if cfg.Backend.ReconnectDelay != 3*time.Second {
		t.Fatalf("unexpected reconnect delay: %v", cfg.Backend.ReconnectDelay)
	}
	if cfg.Audio.RecorderCommand != "ffmpeg" || cfg.Audio.InputFormat != "pulse" {
		t.Fatalf("unexpected recorder config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio format: %+v", cfg.Audio)
	}
	if cfg.Capture.ChunkInterval != 500*time.Millisecond {
		t.Fatalf("unexpected chunk interval: %v", cfg.Capture.ChunkInterval)
	}
	if cfg.Capture.ProbeTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected probe timeout: %v", cfg.Capture.ProbeTimeout)
	}
	if cfg.Debug {
		t.Fatalf("debug must default to off")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ECHOPILOT_BACKEND_URL", "ws://interview.example.com/ws")
	t.Setenv("ECHOPILOT_MIC_DEVICE", "alsa_input.usb-mic")
	t.Setenv("ECHOPILOT_SURFACE_DEVICE", "meeting.monitor")
	t.Setenv("ECHOPILOT_CHUNK_INTERVAL_MS", "250")
	t.Setenv("ECHOPILOT_RECONNECT_DELAY_MS", "1000")
	t.Setenv("ECHOPILOT_DEBUG", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend.URL != "ws://interview.example.com/ws" {
		t.Fatalf("unexpected backend url: %q", cfg.Backend.URL)
	}
	if cfg.Audio.MicDevice != "alsa_input.usb-mic" {
		t.Fatalf("unexpected mic device: %q", cfg.Audio.MicDevice)
	}
	if cfg.Audio.SurfaceDevice != "meeting.monitor" {
		t.Fatalf("unexpected surface device: %q", cfg.Audio.SurfaceDevice)
	}
	if cfg.Capture.ChunkInterval != 250*time.Millisecond {
		t.Fatalf("unexpected chunk interval: %v", cfg.Capture.ChunkInterval)
	}
	if cfg.Backend.ReconnectDelay != time.Second {
		t.Fatalf("unexpected reconnect delay: %v", cfg.Backend.ReconnectDelay)
	}
	if !cfg.Debug {
		t.Fatalf("expected debug enabled")
	}
}

func TestLoadRejectsUnusableValues(t *testing.T) {
	t.Setenv("ECHOPILOT_SAMPLE_RATE", "-1")
	t.Setenv("ECHOPILOT_CHANNELS", "not-a-number")
	t.Setenv("ECHOPILOT_CHUNK_INTERVAL_MS", "5")
	t.Setenv("ECHOPILOT_RECONNECT_DELAY_MS", "0")
	t.Setenv("ECHOPILOT_CONNECT_TIMEOUT_MS", "-200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("negative sample rate must fall back, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Fatalf("unparseable channels must fall back, got %d", cfg.Audio.Channels)
	}
	if cfg.Capture.ChunkInterval != 500*time.Millisecond {
		t.Fatalf("too-small chunk interval must fall back, got %v", cfg.Capture.ChunkInterval)
	}
	if cfg.Backend.ReconnectDelay != 3*time.Second {
		t.Fatalf("zero reconnect delay must fall back, got %v", cfg.Backend.ReconnectDelay)
	}
	if cfg.Backend.ConnectTimeout != 10*time.Second {
		t.Fatalf("negative connect timeout must fall back, got %v", cfg.Backend.ConnectTimeout)
	}
}
