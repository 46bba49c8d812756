package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caretide/intake-gateway/internal/audit"
	"github.com/caretide/intake-gateway/internal/sessionlog"
	"github.com/caretide/intake-gateway/internal/upstream"
	"github.com/caretide/intake-gateway/internal/voice"
)

// defaultSessionLimit is how many sessions are returned when the caller
// omits the ?limit= query parameter.
const defaultSessionLimit = 20

type deps struct {
	voiceSvc   *voice.Service
	auditStore *audit.Store
	auditRec   *audit.Recorder
	sessions   *sessionlog.Store
	monitor    *upstream.Monitor
	wsHandler  http.Handler
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/voice", d.wsHandler)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/engines", d.handleEngines)
	mux.HandleFunc("POST /api/speech", d.handleSpeech)
	mux.HandleFunc("POST /api/audit", d.handleAuditAppend)
	mux.HandleFunc("GET /api/audit/prescription/{id}", d.handleAuditByPrescription)
	mux.HandleFunc("GET /api/audit/refill/{id}", d.handleAuditByRefill)
	mux.HandleFunc("GET /api/audit/report", d.handleAuditReport)
	mux.HandleFunc("GET /api/sessions", d.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", d.handleSessionTurns)
	mux.HandleFunc("GET /api/upstreams", d.handleUpstreams)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (d deps) handleEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, d.voiceSvc.Engines())
}

func (d deps) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string `json:"text"`
		SessionID string `json:"session_id"`
		Engine    string `json:"engine"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	audio, err := d.voiceSvc.SynthesizeSpeech(r.Context(), req.Text, req.SessionID, req.Engine)
	if err != nil {
		var se *voice.StatusError
		if errors.As(err, &se) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if audio == nil {
		// Synthesis soft-disabled or degraded; the caller proceeds text-only.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Write(audio)
}

func (d deps) handleAuditAppend(w http.ResponseWriter, r *http.Request) {
	if d.auditStore == nil {
		http.Error(w, "audit log not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := readBody(r, 1<<20)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	entry, err := audit.ParseEntry(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// async=1 queues the write and returns immediately; failures are
	// counted and published on the notify hub instead of surfaced here.
	if r.URL.Query().Get("async") == "1" {
		d.auditRec.Record(entry)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err = d.auditStore.Append(r.Context(), &entry); err != nil {
		slog.Error("audit append", "action", entry.Action, "error", err)
		if errors.Is(err, audit.ErrWriteFailed) {
			http.Error(w, "audit write failed", http.StatusInternalServerError)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"id": entry.ID})
}

func (d deps) handleAuditByPrescription(w http.ResponseWriter, r *http.Request) {
	d.auditQuery(w, r, func(id int64) ([]audit.Entry, error) {
		return d.auditStore.ByPrescription(r.Context(), id)
	})
}

func (d deps) handleAuditByRefill(w http.ResponseWriter, r *http.Request) {
	d.auditQuery(w, r, func(id int64) ([]audit.Entry, error) {
		return d.auditStore.ByRefill(r.Context(), id)
	})
}

func (d deps) auditQuery(w http.ResponseWriter, r *http.Request, q func(int64) ([]audit.Entry, error)) {
	if d.auditStore == nil {
		http.Error(w, "audit log not configured", http.StatusServiceUnavailable)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	entries, err := q(id)
	if err != nil {
		slog.Error("audit query", "error", err)
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, entries)
}

func (d deps) handleAuditReport(w http.ResponseWriter, r *http.Request) {
	if d.auditStore == nil {
		http.Error(w, "audit log not configured", http.StatusServiceUnavailable)
		return
	}

	var f audit.ReportFilter
	if v := r.URL.Query().Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}
		f.UserID = &id
	}
	var ok bool
	if f.Start, ok = queryTime(w, r, "start"); !ok {
		return
	}
	if f.End, ok = queryTime(w, r, "end"); !ok {
		return
	}

	entries, err := d.auditStore.ComplianceReport(r.Context(), f)
	if err != nil {
		slog.Error("compliance report", "error", err)
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, entries)
}

func (d deps) handleSessions(w http.ResponseWriter, r *http.Request) {
	if d.sessions == nil {
		http.Error(w, "session log not configured", http.StatusServiceUnavailable)
		return
	}
	limit := queryInt(r, "limit", defaultSessionLimit)
	sessions, err := d.sessions.ListSessions(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []sessionlog.Session{}
	}
	writeJSON(w, sessions)
}

func (d deps) handleSessionTurns(w http.ResponseWriter, r *http.Request) {
	if d.sessions == nil {
		http.Error(w, "session log not configured", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	turns, err := d.sessions.SessionTurns(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []sessionlog.Turn{}
	}
	writeJSON(w, map[string]any{"session_id": id, "turns": turns})
}

func (d deps) handleUpstreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, d.monitor.Check(r.Context()))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, limit))
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// queryTime parses an optional RFC 3339 query parameter. Writes a 400 and
// returns ok=false when present but malformed.
func queryTime(w http.ResponseWriter, r *http.Request, key string) (*time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		http.Error(w, "invalid "+key+": want RFC 3339 timestamp", http.StatusBadRequest)
		return nil, false
	}
	return &t, true
}
