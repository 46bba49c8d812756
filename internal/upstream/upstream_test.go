package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckReportsHealthyAndUnhealthy(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	m := NewMonitor([]Service{
		{Name: "whisper-server", Category: "asr", HealthURL: ok.URL + "/health"},
		{Name: "ollama", Category: "llm", HealthURL: bad.URL + "/health"},
	})

	statuses := m.Check(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if !statuses[0].Healthy {
		t.Errorf("whisper-server: healthy = false, want true (err %q)", statuses[0].Error)
	}
	if statuses[1].Healthy {
		t.Error("ollama: healthy = true, want false")
	}
	if statuses[1].Error == "" {
		t.Error("ollama: expected error detail for non-200 probe")
	}
}

func TestCheckUnreachableService(t *testing.T) {
	m := NewMonitor([]Service{
		{Name: "tts", Category: "tts", HealthURL: "http://127.0.0.1:1/health"},
	})

	statuses := m.Check(context.Background())
	if statuses[0].Healthy {
		t.Error("healthy = true for unreachable service")
	}
	if statuses[0].Error == "" {
		t.Error("expected transport error detail")
	}
}
