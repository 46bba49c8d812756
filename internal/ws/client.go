package ws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// DialConfig is the client-side connection policy: exponential-interval
// retry capped at a fixed attempt count.
type DialConfig struct {
	URL         string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c DialConfig) withDefaults() DialConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 8 * time.Second
	}
	return c
}

// backoffDelay returns the wait before retry number attempt (0-based):
// base doubled per attempt, capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// IsNormalClosure reports whether err is the server closing the
// connection with the normal-closure status code. Reconnection is
// suppressed in that case.
func IsNormalClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure)
}

// Dial connects to the gateway, retrying per the config.
func Dial(ctx context.Context, cfg DialConfig) (*websocket.Conn, error) {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoffDelay(attempt-1, cfg.BaseDelay, cfg.MaxDelay)); err != nil {
				return nil, err
			}
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.Warn("dial failed", "url", cfg.URL, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("dial %s after %d attempts: %w", cfg.URL, cfg.MaxAttempts, lastErr)
}

// RunWithReconnect dials and runs the session func, reconnecting with
// backoff when the connection drops. It returns nil when run finishes
// cleanly or the server closed with the normal-closure code; the attempt
// counter resets after each successful connection.
func RunWithReconnect(ctx context.Context, cfg DialConfig, run func(*websocket.Conn) error) error {
	cfg = cfg.withDefaults()

	attempt := 0
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
		if err != nil {
			attempt++
			if attempt >= cfg.MaxAttempts {
				return fmt.Errorf("reconnect %s after %d attempts: %w", cfg.URL, attempt, err)
			}
			if err := sleep(ctx, backoffDelay(attempt-1, cfg.BaseDelay, cfg.MaxDelay)); err != nil {
				return err
			}
			continue
		}

		attempt = 0
		runErr := run(conn)
		conn.Close()

		if runErr == nil || IsNormalClosure(runErr) {
			return nil
		}
		slog.Warn("session dropped, reconnecting", "url", cfg.URL, "error", runErr)

		attempt++
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("reconnect %s: attempts exhausted: %w", cfg.URL, runErr)
		}
		if err := sleep(ctx, backoffDelay(attempt-1, cfg.BaseDelay, cfg.MaxDelay)); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
