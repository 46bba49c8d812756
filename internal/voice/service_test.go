package voice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audio []byte) (*TranscriptResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &TranscriptResult{Text: s.text}, nil
}

type stubResponder struct {
	text string
	err  error
}

func (s *stubResponder) Respond(ctx context.Context, userText, systemPrompt, model string) (*ReplyResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ReplyResult{Text: s.text}, nil
}

type stubSynthesizer struct {
	audio []byte
	err   error
	calls int
}

func (s *stubSynthesizer) SynthesizeAudio(ctx context.Context, text string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

// blockingTranscriber parks until the turn context is cancelled, signalling
// readiness so the test can interrupt deterministically.
type blockingTranscriber struct {
	started chan struct{}
}

func (b *blockingTranscriber) Transcribe(ctx context.Context, audio []byte) (*TranscriptResult, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestService(asr Transcriber, llm Responder, tts Synthesizer) *Service {
	cfg := Config{
		Transcribers: NewTranscriberRouter(map[string]Transcriber{"stub": asr}, "stub"),
		Responders:   NewResponderRouter(map[string]Responder{"stub": llm}, "stub"),
		SystemPrompt: "You are an intake assistant.",
	}
	if tts != nil {
		cfg.Synthesizers = NewSynthesizerRouter(map[string]Synthesizer{"stub": tts}, "stub")
	}
	return NewService(cfg)
}

func TestProcessVoiceInputSuccess(t *testing.T) {
	svc := newTestService(
		&stubTranscriber{text: "I need to refill my prescription"},
		&stubResponder{text: "I can help with that refill."},
		nil,
	)

	msgs := svc.ProcessVoiceInput(context.Background(), []byte("wav"), "sess-1", TurnContext{}, TurnOptions{})

	require.Len(t, msgs, 2)
	assert.Equal(t, MessageTranscription, msgs[0].Type)
	assert.Equal(t, "I need to refill my prescription", msgs[0].Content)
	assert.Equal(t, MessageResponse, msgs[1].Type)
	assert.Equal(t, "I can help with that refill.", msgs[1].Content)
	for _, m := range msgs {
		assert.Equal(t, "sess-1", m.SessionID)
		assert.False(t, m.Timestamp.IsZero())
	}
	assert.False(t, msgs[1].Timestamp.Before(msgs[0].Timestamp))
}

func TestProcessVoiceInputTranscriptionFailure(t *testing.T) {
	svc := newTestService(
		&stubTranscriber{err: errors.New("upstream 500")},
		&stubResponder{text: "never reached"},
		nil,
	)

	msgs := svc.ProcessVoiceInput(context.Background(), nil, "sess-2", TurnContext{}, TurnOptions{})

	require.Len(t, msgs, 1)
	assert.Equal(t, MessageError, msgs[0].Type)
	assert.Equal(t, userFacingError, msgs[0].Content)
	assert.Equal(t, "sess-2", msgs[0].SessionID)
}

func TestProcessVoiceInputCompletionFailure(t *testing.T) {
	svc := newTestService(
		&stubTranscriber{text: "hello"},
		&stubResponder{err: errors.New("model offline")},
		nil,
	)

	msgs := svc.ProcessVoiceInput(context.Background(), nil, "sess-3", TurnContext{}, TurnOptions{})

	require.Len(t, msgs, 2)
	assert.Equal(t, MessageTranscription, msgs[0].Type)
	assert.Equal(t, MessageError, msgs[1].Type)
	assert.Equal(t, userFacingError, msgs[1].Content)
}

func TestHandleInterruptionCancelsInFlightTurn(t *testing.T) {
	blocking := &blockingTranscriber{started: make(chan struct{})}
	svc := newTestService(blocking, &stubResponder{text: "never reached"}, nil)

	go func() {
		<-blocking.started
		svc.HandleInterruption("sess-4")
	}()

	msgs := svc.ProcessVoiceInput(context.Background(), nil, "sess-4", TurnContext{}, TurnOptions{})

	require.Len(t, msgs, 1)
	assert.Equal(t, MessageStatus, msgs[0].Type)
	assert.Equal(t, StatusCancelled, msgs[0].Content)
}

func TestHandleInterruptionIdleSessionIsNoOp(t *testing.T) {
	svc := newTestService(&stubTranscriber{text: "x"}, &stubResponder{text: "y"}, nil)
	svc.HandleInterruption("no-such-session")
}

func TestSynthesizeSpeechSoftDisabled(t *testing.T) {
	synth := &stubSynthesizer{audio: []byte("mp3")}
	svc := newTestService(&stubTranscriber{}, &stubResponder{}, nil)

	audio, err := svc.SynthesizeSpeech(context.Background(), "hello", "sess-5", "")

	require.NoError(t, err)
	assert.Nil(t, audio)
	assert.Zero(t, synth.calls, "disabled synthesis must not reach a backend")
}

func TestSynthesizeSpeechTransportFailureDegrades(t *testing.T) {
	synth := &stubSynthesizer{err: errors.New("connection refused")}
	svc := newTestService(&stubTranscriber{}, &stubResponder{}, synth)

	audio, err := svc.SynthesizeSpeech(context.Background(), "hello", "sess-6", "stub")

	require.NoError(t, err)
	assert.Nil(t, audio)
	assert.Equal(t, 1, synth.calls)
}

func TestSynthesizeSpeechStatusErrorSurfaces(t *testing.T) {
	synth := &stubSynthesizer{err: &StatusError{Status: "401 Unauthorized"}}
	svc := newTestService(&stubTranscriber{}, &stubResponder{}, synth)

	_, err := svc.SynthesizeSpeech(context.Background(), "hello", "sess-7", "stub")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 Unauthorized")
}

func TestSynthesizeSpeechSuccess(t *testing.T) {
	synth := &stubSynthesizer{audio: []byte("mp3-bytes")}
	svc := newTestService(&stubTranscriber{}, &stubResponder{}, synth)

	audio, err := svc.SynthesizeSpeech(context.Background(), "hello", "sess-8", "stub")

	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
}

func TestTurnContextSystemPrompt(t *testing.T) {
	tc := TurnContext{PatientName: "Ada Moreno", ReferralStage: "eligibility", Notes: "prefers morning calls"}
	prompt := tc.SystemPrompt("Base prompt.")

	assert.Contains(t, prompt, "Base prompt.")
	assert.Contains(t, prompt, "Ada Moreno")
	assert.Contains(t, prompt, "eligibility")
	assert.Contains(t, prompt, "prefers morning calls")

	assert.Equal(t, "Base prompt.", TurnContext{}.SystemPrompt("Base prompt."))
}
