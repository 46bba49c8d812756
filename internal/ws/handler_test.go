package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/caretide/intake-gateway/internal/voice"
)

func TestTurnRecordSuccess(t *testing.T) {
	msgs := []voice.Message{
		{Type: voice.MessageTranscription, Content: "refill status please", SessionID: "s1"},
		{Type: voice.MessageResponse, Content: "your refill shipped", SessionID: "s1"},
	}
	rec := turnRecord("s1", msgs, 750*time.Millisecond)

	if rec.Status != "ok" {
		t.Fatalf("status = %q", rec.Status)
	}
	if rec.Transcript != "refill status please" || rec.Response != "your refill shipped" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.DurationMs != 750 {
		t.Fatalf("duration = %v", rec.DurationMs)
	}
}

func TestTurnRecordError(t *testing.T) {
	msgs := []voice.Message{
		{Type: voice.MessageTranscription, Content: "hello", SessionID: "s1"},
		{Type: voice.MessageError, Content: "fixed user-facing string", SessionID: "s1"},
	}
	if rec := turnRecord("s1", msgs, 0); rec.Status != "error" {
		t.Fatalf("status = %q", rec.Status)
	}
}

func TestTurnRecordCancelled(t *testing.T) {
	msgs := []voice.Message{
		{Type: voice.MessageStatus, Content: voice.StatusCancelled, SessionID: "s1"},
	}
	if rec := turnRecord("s1", msgs, 0); rec.Status != "cancelled" {
		t.Fatalf("status = %q", rec.Status)
	}
}

// A client that connects and never sends its metadata frame must be
// dropped, releasing its semaphore slot.
func TestSilentClientDroppedAfterMetadataTimeout(t *testing.T) {
	old := metadataReadTimeout
	metadataReadTimeout = 100 * time.Millisecond
	defer func() { metadataReadTimeout = old }()

	srv := httptest.NewServer(NewHandler(HandlerConfig{MaxConcurrent: 1}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err = conn.ReadMessage(); err == nil {
		t.Fatal("expected the server to drop a silent connection")
	}
}
