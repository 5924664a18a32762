package transport

import (
	"encoding/json"
	"fmt"
	"strings"

	"echopilot/internal/domain"
)

// Outbound event types the backend understands.
const (
	TypeStartSession   = "start_session"
	TypeEndSession     = "end_session"
	TypeAudioChunk     = "audio_chunk"
	TypeGenerateAnswer = "generate_answer"
)

// inboundFrame is the union of every field the backend may send. The type
// tag decides which fields are meaningful.
type inboundFrame struct {
	Type       string   `json:"type"`
	Text       string   `json:"text"`
	IsFinal    bool     `json:"is_final"`
	Question   string   `json:"question"`
	KeyPoints  []string `json:"key_points"`
	IsComplete bool     `json:"is_complete"`
	Status     string   `json:"status"`
	Message    string   `json:"message"`
}

// decodeInbound parses one wire frame into the closed event set. Frames
// with an unknown or missing type are malformed; the caller logs and drops
// them without touching the connection.
func decodeInbound(payload []byte) (domain.InboundEvent, error) {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("unparseable frame: %w", err)
	}

	switch strings.TrimSpace(frame.Type) {
	case "transcription":
		return domain.Transcription{Text: frame.Text, IsFinal: frame.IsFinal}, nil
	case "ai_response":
		return domain.AnswerUpdate{
			Question:   frame.Question,
			Text:       frame.Text,
			KeyPoints:  frame.KeyPoints,
			IsComplete: frame.IsComplete,
		}, nil
	case "status":
		return domain.StatusUpdate{Status: frame.Status, Message: frame.Message}, nil
	case "error":
		return domain.BackendFault{Message: frame.Message}, nil
	case "":
		return nil, fmt.Errorf("frame has no type tag")
	default:
		return nil, fmt.Errorf("unknown frame type %q", frame.Type)
	}
}
