package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/caretide/intake-gateway/internal/metrics"
	"github.com/caretide/intake-gateway/internal/notify"
)

const writeTimeout = 5 * time.Second

// Appender is the write half of the audit store.
type Appender interface {
	Append(ctx context.Context, e *Entry) error
}

// Recorder appends entries asynchronously via a buffered channel, for
// callers that must not block on the audit store (the voice session loop).
// A failed write is not silent: it is logged, counted, and published on
// the notify hub so an operator surface can react. Callers that need the
// write acknowledged use Store.Append directly instead.
//
// All methods are nil-safe (no-op on nil receiver). Record after Close
// drops the entry instead of panicking: WebSocket sessions are hijacked
// connections that outlive server shutdown, so late writes must be safe.
type Recorder struct {
	store Appender
	hub   *notify.Hub

	mu     sync.Mutex
	closed bool
	ch     chan Entry
	done   chan struct{}
}

// NewRecorder starts a recorder draining into store. Must call Close when done.
func NewRecorder(store Appender, hub *notify.Hub) *Recorder {
	r := &Recorder{
		store: store,
		hub:   hub,
		ch:    make(chan Entry, 64),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for e := range r.ch {
		r.append(e)
	}
}

func (r *Recorder) append(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.Append(ctx, &e); err != nil {
		metrics.AuditWriteFailures.Inc()
		slog.Error("audit write failed", "action", e.Action, "user_id", e.UserID, "error", err)
		if r.hub != nil {
			r.hub.Publish(notify.Notice{
				Topic:   "audit",
				Message: "audit write failed for action " + string(e.Action),
			})
		}
		return
	}
	metrics.AuditWrites.Inc()
}

// Record enqueues an entry for appending. After Close the entry is
// dropped, counted as a failed write, and published on the hub.
func (r *Recorder) Record(e Entry) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		metrics.AuditWriteFailures.Inc()
		slog.Error("audit entry dropped, recorder closed", "action", e.Action, "user_id", e.UserID)
		if r.hub != nil {
			r.hub.Publish(notify.Notice{
				Topic:   "audit",
				Message: "audit write dropped during shutdown for action " + string(e.Action),
			})
		}
		return
	}
	r.ch <- e
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
