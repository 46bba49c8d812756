package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/caretide/intake-gateway/internal/metrics"
	"github.com/caretide/intake-gateway/internal/notify"
	"github.com/caretide/intake-gateway/internal/sessionlog"
	"github.com/caretide/intake-gateway/internal/voice"
)

// metadataReadTimeout bounds how long a freshly upgraded connection may
// sit silent before sending its metadata frame; without it a mute client
// pins a semaphore slot indefinitely. Variable for tests.
var metadataReadTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the shared services for all voice sessions.
type HandlerConfig struct {
	Voice         *voice.Service
	Sessions      *sessionlog.Recorder
	Hub           *notify.Hub
	MaxConcurrent int
}

// Handler manages WebSocket voice sessions with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates a WebSocket handler with shared services and a concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, maxConc),
	}
}

// sessionMetadata is the first text frame sent by the client.
type sessionMetadata struct {
	ASREngine  string            `json:"asr_engine"`
	LLMEngine  string            `json:"llm_engine"`
	LLMModel   string            `json:"llm_model"`
	TTSEngine  string            `json:"tts_engine"`
	Synthesize bool              `json:"synthesize"`
	Context    voice.TurnContext `json:"context"`
}

// controlFrame is any text frame after the metadata frame.
type controlFrame struct {
	Type string `json:"type"`
}

// ServeHTTP upgrades the connection and runs the voice session.
// Returns 503 at max concurrent session capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	defer metrics.SessionsActive.Dec()

	h.runSession(conn)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meta, rawMeta, err := readMetadata(conn)
	if err != nil {
		slog.Error("read session metadata", "error", err)
		return
	}

	sessionID := uuid.NewString()
	slog.Info("session started", "session_id", sessionID,
		"asr_engine", meta.ASREngine, "llm_engine", meta.LLMEngine, "tts_engine", meta.TTSEngine,
		"synthesize", meta.Synthesize)

	h.cfg.Sessions.SessionStarted(sessionID, string(rawMeta))
	defer h.cfg.Sessions.SessionEnded(sessionID)

	sender := newMessageSender(conn)
	sender.sendJSON(voice.NewStatus("session started", sessionID))

	if h.cfg.Hub != nil {
		notices, unsubscribe := h.cfg.Hub.Subscribe()
		defer unsubscribe()
		go forwardNotices(ctx, notices, sessionID, sender)
	}

	// Turns run on their own goroutine so the read loop stays free to
	// pick up interrupt frames while a turn is in flight. Turns within a
	// session stay sequential.
	utterances := make(chan []byte, 4)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for audio := range utterances {
			h.runTurn(ctx, sessionID, audio, meta, sender)
		}
	}()

	h.processFrames(conn, sessionID, utterances)
	close(utterances)
	<-workerDone
	slog.Info("session ended", "session_id", sessionID)
}

// processFrames reads frames in a loop. Each binary frame is one complete
// utterance and queues one voice turn; text frames are control messages.
func (h *Handler) processFrames(conn *websocket.Conn, sessionID string, utterances chan<- []byte) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "session_id", sessionID, "error", err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			select {
			case utterances <- data:
			default:
				slog.Warn("utterance dropped, turn backlog full", "session_id", sessionID)
			}
		case websocket.TextMessage:
			h.handleControl(sessionID, data)
		}
	}
}

func (h *Handler) runTurn(ctx context.Context, sessionID string, audio []byte, meta *sessionMetadata, sender *messageSender) {
	start := time.Now()

	msgs := h.cfg.Voice.ProcessVoiceInput(ctx, audio, sessionID, meta.Context, voice.TurnOptions{
		ASREngine: meta.ASREngine,
		LLMEngine: meta.LLMEngine,
		LLMModel:  meta.LLMModel,
	})
	for _, m := range msgs {
		sender.sendJSON(m)
	}

	h.cfg.Sessions.TurnCompleted(turnRecord(sessionID, msgs, time.Since(start)))

	if !meta.Synthesize || len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Type != voice.MessageResponse {
		return
	}

	audioOut, err := h.cfg.Voice.SynthesizeSpeech(ctx, last.Content, sessionID, meta.TTSEngine)
	if err != nil {
		slog.Error("synthesize reply", "session_id", sessionID, "error", err)
		sender.sendJSON(voice.NewStatus("speech unavailable", sessionID))
		return
	}
	if audioOut != nil {
		sender.sendBinary(audioOut)
	}
}

func (h *Handler) handleControl(sessionID string, data []byte) {
	var frame controlFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		slog.Warn("bad control frame", "session_id", sessionID, "error", err)
		return
	}
	if frame.Type == "interrupt" {
		h.cfg.Voice.HandleInterruption(sessionID)
	}
}

// turnRecord summarizes a turn's messages for the session log.
func turnRecord(sessionID string, msgs []voice.Message, elapsed time.Duration) sessionlog.Turn {
	t := sessionlog.Turn{
		SessionID:  sessionID,
		Status:     "ok",
		DurationMs: float64(elapsed.Milliseconds()),
	}
	for _, m := range msgs {
		switch m.Type {
		case voice.MessageTranscription:
			t.Transcript = m.Content
		case voice.MessageResponse:
			t.Response = m.Content
		case voice.MessageError:
			t.Status = "error"
		case voice.MessageStatus:
			if m.Content == voice.StatusCancelled {
				t.Status = "cancelled"
			}
		}
	}
	return t
}

// forwardNotices relays hub notices addressed to this session (or to
// everyone) as status messages.
func forwardNotices(ctx context.Context, notices <-chan notify.Notice, sessionID string, sender *messageSender) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			if n.SessionID != "" && n.SessionID != sessionID {
				continue
			}
			sender.sendJSON(voice.NewStatus(n.Message, sessionID))
		}
	}
}

// messageSender serializes concurrent writers onto one connection.
type messageSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newMessageSender(conn *websocket.Conn) *messageSender {
	return &messageSender{conn: conn}
}

func (s *messageSender) sendJSON(m voice.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("write message", "error", err)
	}
}

func (s *messageSender) sendBinary(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		slog.Error("write audio", "error", err)
	}
}

func readMetadata(conn *websocket.Conn) (*sessionMetadata, []byte, error) {
	conn.SetReadDeadline(time.Now().Add(metadataReadTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, nil, err
	}
	var meta sessionMetadata
	if err = json.Unmarshal(data, &meta); err != nil {
		return nil, nil, err
	}
	return &meta, data, nil
}
