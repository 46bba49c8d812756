package sessionlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/caretide/intake-gateway/internal/metrics"
)

const writeTimeout = 5 * time.Second

type logMsg struct {
	kind string // "start", "end", "turn"
	id   string
	meta string
	turn Turn
}

// Recorder writes session history asynchronously so the voice loop never
// waits on local disk. History is best-effort; failures are logged and
// counted. All methods are nil-safe (no-op on nil receiver), and writes
// after Close are dropped rather than panicking: WebSocket sessions are
// hijacked connections that outlive server shutdown.
type Recorder struct {
	store *Store

	mu     sync.Mutex
	closed bool
	ch     chan logMsg
	done   chan struct{}
}

// NewRecorder starts a recorder draining into store. Must call Close when done.
func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store: store,
		ch:    make(chan logMsg, 64),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for m := range r.ch {
		r.handle(m)
	}
}

func (r *Recorder) handle(m logMsg) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch m.kind {
	case "start":
		err = r.store.StartSession(ctx, m.id, m.meta)
	case "end":
		err = r.store.EndSession(ctx, m.id)
	case "turn":
		err = r.store.AppendTurn(ctx, m.turn)
	}
	if err != nil {
		metrics.SessionLogWriteFailures.Inc()
		slog.Warn("session log write failed", "kind", m.kind, "error", err)
	}
}

// SessionStarted records a new session.
func (r *Recorder) SessionStarted(id, metadata string) {
	r.enqueue(logMsg{kind: "start", id: id, meta: metadata})
}

// SessionEnded stamps a session's end.
func (r *Recorder) SessionEnded(id string) {
	r.enqueue(logMsg{kind: "end", id: id})
}

// TurnCompleted records one finished turn.
func (r *Recorder) TurnCompleted(t Turn) {
	r.enqueue(logMsg{kind: "turn", turn: t})
}

func (r *Recorder) enqueue(m logMsg) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		metrics.SessionLogWriteFailures.Inc()
		slog.Warn("session log write dropped, recorder closed", "kind", m.kind)
		return
	}
	r.ch <- m
}

// Close drains pending writes and stops the background goroutine.
// Safe to call more than once.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	<-r.done
}
