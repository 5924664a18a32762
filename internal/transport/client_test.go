package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"echopilot/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testBackend is a minimal fake of the interview backend.
type testBackend struct {
	server *httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []map[string]any

	connCount atomic.Int32
	onConnect func(conn *websocket.Conn)
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	backend := &testBackend{}
	backend.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		backend.connCount.Add(1)
		backend.mu.Lock()
		backend.conns = append(backend.conns, conn)
		onConnect := backend.onConnect
		backend.mu.Unlock()

		if onConnect != nil {
			onConnect(conn)
			return
		}

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame map[string]any
			if json.Unmarshal(payload, &frame) == nil {
				backend.mu.Lock()
				backend.received = append(backend.received, frame)
				backend.mu.Unlock()
			}
		}
	}))
	t.Cleanup(backend.server.Close)
	return backend
}

func (b *testBackend) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func (b *testBackend) lastConn() *websocket.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		return nil
	}
	return b.conns[len(b.conns)-1]
}

func (b *testBackend) frames() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, len(b.received))
	copy(out, b.received)
	return out
}

func newTestClient(backend *testBackend, delay time.Duration) *Client {
	return NewClient(Config{
		URL:            backend.url(),
		ReconnectDelay: delay,
		DialTimeout:    2 * time.Second,
	}, zap.NewNop())
}

func awaitEvent(t *testing.T, events <-chan domain.InboundEvent) domain.InboundEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func awaitConnState(t *testing.T, events <-chan domain.InboundEvent, want domain.ConnectionState) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case event := <-events:
			if change, ok := event.(domain.ConnectionChange); ok && change.State == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for connection state %s", want)
		}
	}
}

func TestClientConnectIsIdempotent(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	client := newTestClient(backend, time.Second)
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("second connect failed: %v", err)
	}
	awaitConnState(t, client.Events(), domain.ConnectionConnected)

	if got := client.State(); got != domain.ConnectionConnected {
		t.Fatalf("unexpected state: %s", got)
	}
	if count := backend.connCount.Load(); count != 1 {
		t.Fatalf("expected a single connection, got %d", count)
	}
}

func TestClientDispatchPreservesArrivalOrder(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	backend.onConnect = func(conn *websocket.Conn) {
		frames := []string{
			`{"not json`,
			`{"type":"transcription","text":"partial one","is_final":false}`,
			`{"type":"mystery"}`,
			`{"type":"transcription","text":"final one","is_final":true}`,
			`{"type":"status","status":"session_started"}`,
			`{"type":"ai_response","text":"answer","is_complete":true}`,
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
	}

	client := newTestClient(backend, time.Second)
	defer client.Disconnect()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	awaitConnState(t, client.Events(), domain.ConnectionConnected)

	var got []domain.InboundEvent
	for len(got) < 4 {
		event := awaitEvent(t, client.Events())
		if _, ok := event.(domain.ConnectionChange); ok {
			continue
		}
		got = append(got, event)
	}

	if tr, ok := got[0].(domain.Transcription); !ok || tr.IsFinal || tr.Text != "partial one" {
		t.Fatalf("unexpected first event: %#v", got[0])
	}
	if tr, ok := got[1].(domain.Transcription); !ok || !tr.IsFinal || tr.Text != "final one" {
		t.Fatalf("unexpected second event: %#v", got[1])
	}
	if status, ok := got[2].(domain.StatusUpdate); !ok || status.Status != domain.StatusSessionStarted {
		t.Fatalf("unexpected third event: %#v", got[2])
	}
	if answer, ok := got[3].(domain.AnswerUpdate); !ok || !answer.IsComplete {
		t.Fatalf("unexpected fourth event: %#v", got[3])
	}
}

func TestClientSendWhileDisconnectedReturnsFalse(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	client := newTestClient(backend, time.Second)

	if client.Send(TypeStartSession, nil) {
		t.Fatalf("expected send to fail while disconnected")
	}
}

func TestClientSendStampsEnvelope(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	client := newTestClient(backend, time.Second)
	defer client.Disconnect()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	awaitConnState(t, client.Events(), domain.ConnectionConnected)

	if !client.Send(TypeGenerateAnswer, map[string]any{"question": "why Go"}) {
		t.Fatalf("send failed")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		frames := backend.frames()
		if len(frames) > 0 {
			frame := frames[0]
			if frame["type"] != TypeGenerateAnswer {
				t.Fatalf("unexpected type: %v", frame["type"])
			}
			if frame["question"] != "why Go" {
				t.Fatalf("payload not merged: %v", frame)
			}
			if frame["message_id"] == "" || frame["message_id"] == nil {
				t.Fatalf("missing message id: %v", frame)
			}
			if frame["timestamp"] == "" || frame["timestamp"] == nil {
				t.Fatalf("missing timestamp: %v", frame)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("backend never received the frame")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientReconnectsAfterUnexpectedClose(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	backend.onConnect = func(conn *websocket.Conn) {
		// Kill the first connection abruptly; keep later ones open.
		if backend.connCount.Load() == 1 {
			_ = conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}

	client := newTestClient(backend, 50*time.Millisecond)
	defer client.Disconnect()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	awaitConnState(t, client.Events(), domain.ConnectionConnected)
	awaitConnState(t, client.Events(), domain.ConnectionErrored)
	awaitConnState(t, client.Events(), domain.ConnectionConnected)

	if count := backend.connCount.Load(); count < 2 {
		t.Fatalf("expected a reconnect, saw %d connections", count)
	}
}

func TestClientKeepsRetryingWhileBackendIsDown(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	client := newTestClient(backend, 30*time.Millisecond)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	awaitConnState(t, client.Events(), domain.ConnectionConnected)

	// Take the backend away entirely; the first conn dies and every retry
	// fails, which must keep rescheduling rather than give up or crash.
	backend.server.CloseClientConnections()
	backend.server.Close()

	awaitConnState(t, client.Events(), domain.ConnectionErrored)
	awaitConnState(t, client.Events(), domain.ConnectionConnecting)
	awaitConnState(t, client.Events(), domain.ConnectionErrored)
	awaitConnState(t, client.Events(), domain.ConnectionConnecting)

	client.Disconnect()
	awaitConnState(t, client.Events(), domain.ConnectionDisconnected)

	// After an intentional disconnect no further attempts may fire.
	time.Sleep(150 * time.Millisecond)
	drained := true
	for drained {
		select {
		case event := <-client.Events():
			if change, ok := event.(domain.ConnectionChange); ok && change.State == domain.ConnectionConnecting {
				t.Fatalf("reconnect attempt after intentional disconnect")
			}
		default:
			drained = false
		}
	}
	if got := client.State(); got != domain.ConnectionDisconnected {
		t.Fatalf("unexpected state after disconnect: %s", got)
	}
}

func TestClientConnectWhileRetryPendingYieldsOneConnection(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	backend.onConnect = func(conn *websocket.Conn) {
		// Kill the first connection abruptly so a retry timer gets armed;
		// keep later ones open.
		if backend.connCount.Load() == 1 {
			_ = conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}

	client := newTestClient(backend, 200*time.Millisecond)
	defer client.Disconnect()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	awaitConnState(t, client.Events(), domain.ConnectionConnected)
	awaitConnState(t, client.Events(), domain.ConnectionErrored)

	// A user connect while the retry timer is pending must supersede the
	// pending attempt, not run alongside it.
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect during retry window failed: %v", err)
	}
	awaitConnState(t, client.Events(), domain.ConnectionConnected)

	// Wait out the original retry delay; the cancelled timer must not dial.
	time.Sleep(500 * time.Millisecond)
	if got := client.State(); got != domain.ConnectionConnected {
		t.Fatalf("unexpected state: %s", got)
	}
	if count := backend.connCount.Load(); count != 2 {
		t.Fatalf("expected exactly two dials (initial plus user connect), got %d", count)
	}
}

func TestClientIntentionalDisconnectDoesNotReconnect(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	client := newTestClient(backend, 30*time.Millisecond)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	awaitConnState(t, client.Events(), domain.ConnectionConnected)

	client.Disconnect()
	awaitConnState(t, client.Events(), domain.ConnectionDisconnected)

	time.Sleep(120 * time.Millisecond)
	if count := backend.connCount.Load(); count != 1 {
		t.Fatalf("expected no reconnects after disconnect, saw %d connections", count)
	}
}
