package audio

import (
	"encoding/binary"
	"io"
	"sync"

	"echopilot/internal/ports"
)

// mixedSession sums two PCM sessions into one output stream. The sources
// run in real time, so both deliver a steady byte rate; the mixer pairs
// whatever both sides have and passes a lone survivor through once the
// other side ends.
type mixedSession struct {
	mic     ports.AudioSession
	surface ports.AudioSession

	reader   *io.PipeReader
	writer   *io.PipeWriter
	stopOnce sync.Once
}

func newMixedSession(mic, surface ports.AudioSession) *mixedSession {
	reader, writer := io.Pipe()
	m := &mixedSession{
		mic:     mic,
		surface: surface,
		reader:  reader,
		writer:  writer,
	}
	go m.pump()
	return m
}

func (m *mixedSession) Read(p []byte) (int, error) {
	return m.reader.Read(p)
}

func (m *mixedSession) Label() string {
	return m.mic.Label() + " + " + m.surface.Label()
}

func (m *mixedSession) Close() error {
	return m.Stop()
}

func (m *mixedSession) Stop() error {
	var micErr, surfaceErr error
	m.stopOnce.Do(func() {
		micErr = m.mic.Stop()
		surfaceErr = m.surface.Stop()
		_ = m.reader.Close()
	})
	if micErr != nil {
		return micErr
	}
	return surfaceErr
}

type sourceRead struct {
	data []byte
	err  error
}

func (m *mixedSession) pump() {
	micCh := readInto(m.mic)
	surfaceCh := readInto(m.surface)

	var micBuf, surfaceBuf []byte
	micOpen, surfaceOpen := true, true

	for micOpen || surfaceOpen {
		var read sourceRead
		var fromMic bool

		select {
		case read, micOpen = <-micCh:
			if !micOpen {
				micCh = nil
				continue
			}
			fromMic = true
		case read, surfaceOpen = <-surfaceCh:
			if !surfaceOpen {
				surfaceCh = nil
				continue
			}
		}

		if len(read.data) > 0 {
			if fromMic {
				micBuf = append(micBuf, read.data...)
			} else {
				surfaceBuf = append(surfaceBuf, read.data...)
			}
		}

		var out []byte
		switch {
		case len(micBuf) > 0 && len(surfaceBuf) > 0:
			n := len(micBuf)
			if len(surfaceBuf) < n {
				n = len(surfaceBuf)
			}
			n -= n % 2
			if n == 0 {
				continue
			}
			out = mixPCM(micBuf[:n], surfaceBuf[:n])
			micBuf = micBuf[n:]
			surfaceBuf = surfaceBuf[n:]
		case !surfaceOpen && len(micBuf) > 0:
			out = micBuf
			micBuf = nil
		case !micOpen && len(surfaceBuf) > 0:
			out = surfaceBuf
			surfaceBuf = nil
		default:
			continue
		}

		if _, err := m.writer.Write(out); err != nil {
			break
		}
	}

	_ = m.writer.Close()
}

func readInto(session ports.AudioSession) <-chan sourceRead {
	ch := make(chan sourceRead, 4)
	go func() {
		defer close(ch)
		buf := make([]byte, 4096)
		for {
			n, err := session.Read(buf)
			if n > 0 {
				ch <- sourceRead{data: append([]byte(nil), buf[:n]...)}
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

// mixPCM sums two equal-length s16le buffers with saturation.
func mixPCM(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := 0; i+1 < len(a); i += 2 {
		sampleA := int32(int16(binary.LittleEndian.Uint16(a[i:])))
		sampleB := int32(int16(binary.LittleEndian.Uint16(b[i:])))
		sum := sampleA + sampleB
		if sum > 32767 {
			sum = 32767
		} else if sum < -32768 {
			sum = -32768
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(sum)))
	}
	return out
}
