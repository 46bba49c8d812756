package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/caretide/intake-gateway/internal/metrics"
)

// Config holds the shared backend routers for all voice sessions.
type Config struct {
	Transcribers *TranscriberRouter
	Responders   *ResponderRouter
	// Synthesizers is nil when speech synthesis is soft-disabled
	// (no credential, or the test_key sentinel).
	Synthesizers *SynthesizerRouter
	SystemPrompt string
}

// Service performs voice turns: transcribe an utterance, generate a reply,
// optionally synthesize speech. It holds no per-session conversation state;
// the session id only threads through messages and logs. The one piece of
// session-scoped state is the cancel func of the in-flight turn, so an
// interruption can abandon it.
type Service struct {
	cfg Config

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewService creates a voice service over the given backends.
func NewService(cfg Config) *Service {
	return &Service{
		cfg:      cfg,
		inflight: make(map[string]context.CancelFunc),
	}
}

// TurnOptions selects backends for one turn. Zero values fall back to the
// routers' defaults.
type TurnOptions struct {
	ASREngine string
	LLMEngine string
	LLMModel  string
}

// ProcessVoiceInput runs one transcribe-then-respond turn. On success the
// returned messages are exactly a transcription followed by a response, in
// that order, each timestamped when produced. If a stage fails, messages
// produced so far are followed by a single error message with a fixed
// user-facing string; the cause is logged, never returned. If the turn is
// interrupted, a status message with content "cancelled" ends the sequence
// instead. No retries are attempted.
func (s *Service) ProcessVoiceInput(ctx context.Context, audio []byte, sessionID string, tc TurnContext, opts TurnOptions) []Message {
	metrics.TurnsTotal.Inc()
	start := time.Now()

	turnCtx, done := s.beginTurn(ctx, sessionID)
	defer done()

	var messages []Message

	transcript, err := s.cfg.Transcribers.Transcribe(turnCtx, audio, opts.ASREngine)
	if err != nil {
		return append(messages, s.finishFailed(turnCtx, sessionID, "asr", err))
	}
	slog.Info("transcript", "session_id", sessionID, "text", transcript.Text, "asr_ms", transcript.LatencyMs)
	messages = append(messages, newMessage(MessageTranscription, transcript.Text, sessionID))

	reply, err := s.cfg.Responders.Respond(turnCtx, transcript.Text, tc.SystemPrompt(s.cfg.SystemPrompt), opts.LLMModel, opts.LLMEngine)
	if err != nil {
		return append(messages, s.finishFailed(turnCtx, sessionID, "llm", err))
	}
	slog.Info("reply", "session_id", sessionID, "text", reply.Text, "llm_ms", reply.LatencyMs)
	messages = append(messages, newMessage(MessageResponse, reply.Text, sessionID))

	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	return messages
}

// finishFailed converts a stage failure into the terminal message for the
// turn: a cancelled status if the caller interrupted, a fixed user-facing
// error otherwise.
func (s *Service) finishFailed(ctx context.Context, sessionID, stage string, err error) Message {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		metrics.TurnsCancelled.Inc()
		slog.Info("turn cancelled", "session_id", sessionID, "stage", stage)
		return newMessage(MessageStatus, StatusCancelled, sessionID)
	}
	slog.Error("voice turn failed", "session_id", sessionID, "stage", stage, "error", err)
	return newMessage(MessageError, userFacingError, sessionID)
}

// SynthesizeSpeech vocalizes text. When synthesis is soft-disabled it
// returns no audio and no error. A backend answering with a non-success
// status surfaces as an error; transport-level failures degrade to no
// audio so the turn still completes.
func (s *Service) SynthesizeSpeech(ctx context.Context, text, sessionID, engine string) ([]byte, error) {
	if s.cfg.Synthesizers == nil {
		metrics.SynthSkipped.Inc()
		slog.Warn("speech synthesis disabled, skipping", "session_id", sessionID)
		return nil, nil
	}

	result, err := s.cfg.Synthesizers.Synthesize(ctx, text, engine)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, err
		}
		slog.Warn("speech synthesis failed, continuing without audio", "session_id", sessionID, "error", err)
		return nil, nil
	}

	slog.Info("speech synthesized", "session_id", sessionID, "bytes", len(result.Audio), "tts_ms", result.LatencyMs)
	return result.Audio, nil
}

// HandleInterruption cancels the session's in-flight turn, if any. The
// cancellation threads through every pending collaborator call; the turn
// ends with a cancelled status message. Interrupting an idle session is
// a no-op beyond the log line.
func (s *Service) HandleInterruption(sessionID string) {
	s.mu.Lock()
	cancel, ok := s.inflight[sessionID]
	s.mu.Unlock()

	if !ok {
		slog.Info("interruption with no turn in flight", "session_id", sessionID)
		return
	}
	slog.Info("session interrupted", "session_id", sessionID)
	cancel()
}

// beginTurn registers a cancellable scope for the session's current turn.
// Only one turn per session is tracked; a session's turns are sequential
// by construction (one socket read loop per connection).
func (s *Service) beginTurn(ctx context.Context, sessionID string) (context.Context, func()) {
	turnCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.inflight[sessionID] = cancel
	s.mu.Unlock()

	return turnCtx, func() {
		s.mu.Lock()
		delete(s.inflight, sessionID)
		s.mu.Unlock()
		cancel()
	}
}

// Engines lists the registered backend names per stage, for the dashboard
// settings panel.
func (s *Service) Engines() map[string][]string {
	out := map[string][]string{
		"asr": s.cfg.Transcribers.Engines(),
		"llm": s.cfg.Responders.Engines(),
	}
	if s.cfg.Synthesizers != nil {
		out["tts"] = s.cfg.Synthesizers.Engines()
	} else {
		out["tts"] = []string{}
	}
	return out
}
