package main

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"echopilot/internal/domain"
)

func TestParseSourceKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want domain.SourceKind
	}{
		{"microphone", domain.SourceMicrophone},
		{"mic", domain.SourceMicrophone},
		{"captured_surface", domain.SourceCapturedSurface},
		{"surface", domain.SourceCapturedSurface},
		{"tab", domain.SourceCapturedSurface},
		{"mixed", domain.SourceMixed},
		{"both", domain.SourceMixed},
	}
	for _, tc := range cases {
		got, err := parseSourceKind(tc.raw)
		if err != nil {
			t.Fatalf("parse %q failed: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: got %s, want %s", tc.raw, got, tc.want)
		}
	}

	if _, err := parseSourceKind("camera"); err == nil {
		t.Fatalf("expected error for unknown source kind")
	}
}

func TestPhaseMessageCoversAllPhases(t *testing.T) {
	t.Parallel()

	phases := []domain.SessionPhase{
		domain.SessionPhaseIdle,
		domain.SessionPhaseAwaitingPermission,
		domain.SessionPhaseConnecting,
		domain.SessionPhaseActive,
		domain.SessionPhaseEnded,
		domain.SessionPhaseError,
	}
	for _, phase := range phases {
		if phaseMessage(phase) == "" {
			t.Fatalf("missing message for phase %s", phase)
		}
	}
	if phaseMessage(domain.SessionPhase("bogus")) != "" {
		t.Fatalf("unknown phase must map to an empty message")
	}
}

func TestConnectionMessageCoversAllStates(t *testing.T) {
	t.Parallel()

	states := []domain.ConnectionState{
		domain.ConnectionDisconnected,
		domain.ConnectionConnecting,
		domain.ConnectionConnected,
		domain.ConnectionErrored,
	}
	for _, state := range states {
		if connectionMessage(state) == "" {
			t.Fatalf("missing message for state %s", state)
		}
	}
	if got := connectionMessage(domain.ConnectionErrored); !strings.Contains(got, "retrying") {
		t.Fatalf("errored message must mention retrying, got %q", got)
	}
}

func TestErrorMessageCoversAllCodes(t *testing.T) {
	t.Parallel()

	codes := []domain.ErrorCode{
		domain.ErrorCodeStartup,
		domain.ErrorCodePermissionDenied,
		domain.ErrorCodeNoAudioTrack,
		domain.ErrorCodeAudioDevice,
		domain.ErrorCodeConnection,
		domain.ErrorCodeBackend,
		domain.ErrorCodeClipboard,
	}
	for _, code := range codes {
		if errorMessage(code, "detail") == "" {
			t.Fatalf("missing message for code %s", code)
		}
	}

	if got := errorMessage(domain.ErrorCode("other"), "the raw detail"); got != "the raw detail" {
		t.Fatalf("unknown code must surface the detail, got %q", got)
	}
	if got := errorMessage(domain.ErrorCode("other"), ""); got != "Unknown error" {
		t.Fatalf("unknown code without detail: %q", got)
	}
}

func TestBindingsRejectUninitializedApp(t *testing.T) {
	t.Parallel()

	app := NewApp(zap.NewNop())

	if err := app.StartInterview("microphone"); err == nil {
		t.Fatalf("expected error before startup")
	}
	if err := app.RequestAnswer("question"); err == nil {
		t.Fatalf("expected error before startup")
	}
	if err := app.ClearSession(); err == nil {
		t.Fatalf("expected error before startup")
	}

	snap := app.GetSnapshot()
	if snap.Phase != domain.SessionPhaseIdle {
		t.Fatalf("uninitialized snapshot must be idle, got %s", snap.Phase)
	}
	if snap.Connection != domain.ConnectionDisconnected {
		t.Fatalf("uninitialized snapshot must be disconnected, got %s", snap.Connection)
	}
	if level := app.GetAudioLevel(); level != 0 {
		t.Fatalf("uninitialized level must be zero, got %f", level)
	}
}

func TestBootErrorSurfacesEverywhere(t *testing.T) {
	t.Parallel()

	app := NewApp(zap.NewNop())
	app.bootErr = errors.New("config unusable")

	if err := app.StartInterview("microphone"); !errors.Is(err, app.bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if got := app.GetSnapshot().Phase; got != domain.SessionPhaseError {
		t.Fatalf("expected error phase after boot failure, got %s", got)
	}
	info := app.GetRuntimeInfo()
	if info["error"] != "config unusable" {
		t.Fatalf("runtime info must carry the boot error, got %v", info)
	}
}
