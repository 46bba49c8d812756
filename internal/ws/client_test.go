package ws

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	base := 500 * time.Millisecond
	max := 8 * time.Second

	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second, // capped
	}
	for attempt, w := range want {
		if got := backoffDelay(attempt, base, max); got != w {
			t.Fatalf("backoffDelay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffDelayBaseAboveMax(t *testing.T) {
	if got := backoffDelay(0, 10*time.Second, time.Second); got != time.Second {
		t.Fatalf("backoffDelay = %v, want cap", got)
	}
}

func TestIsNormalClosure(t *testing.T) {
	normal := &websocket.CloseError{Code: websocket.CloseNormalClosure}
	if !IsNormalClosure(normal) {
		t.Fatal("normal closure not recognized")
	}
	abnormal := &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	if IsNormalClosure(abnormal) {
		t.Fatal("abnormal closure treated as normal")
	}
	if IsNormalClosure(errors.New("plain error")) {
		t.Fatal("plain error treated as normal closure")
	}
}

func TestDialConfigDefaults(t *testing.T) {
	cfg := DialConfig{URL: "ws://example"}.withDefaults()
	if cfg.MaxAttempts != 5 || cfg.BaseDelay != 500*time.Millisecond || cfg.MaxDelay != 8*time.Second {
		t.Fatalf("defaults = %+v", cfg)
	}

	custom := DialConfig{URL: "ws://example", MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}.withDefaults()
	if custom.MaxAttempts != 2 || custom.BaseDelay != time.Millisecond {
		t.Fatalf("custom config overwritten: %+v", custom)
	}
}

