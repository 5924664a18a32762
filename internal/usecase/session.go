package usecase

import (
	"strings"

	"echopilot/internal/domain"
)

// sessionState is the one mutable Session. It is owned by the coordinator;
// everything else sees copies.
type sessionState struct {
	id         string
	phase      domain.SessionPhase
	transcript []string
	interim    string
	answer     domain.Answer
}

// reset clears accumulated content without touching id or phase.
func (s *sessionState) reset() {
	s.transcript = nil
	s.interim = ""
	s.answer = domain.Answer{}
}

func (s *sessionState) snapshot(connection domain.ConnectionState) domain.SessionSnapshot {
	transcript := make([]string, len(s.transcript))
	copy(transcript, s.transcript)

	answer := s.answer
	if s.answer.KeyPoints != nil {
		answer.KeyPoints = append([]string(nil), s.answer.KeyPoints...)
	}

	return domain.SessionSnapshot{
		ID:         s.id,
		Phase:      s.phase,
		Transcript: transcript,
		Interim:    s.interim,
		Answer:     answer,
		Connection: connection,
	}
}

// transcriptText joins finalized utterances with a paragraph separator.
func (s *sessionState) transcriptText() string {
	return strings.Join(s.transcript, "\n\n")
}
