package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/caretide/intake-gateway/internal/audit"
	"github.com/caretide/intake-gateway/internal/notify"
	"github.com/caretide/intake-gateway/internal/sessionlog"
	"github.com/caretide/intake-gateway/internal/upstream"
	"github.com/caretide/intake-gateway/internal/voice"
	"github.com/caretide/intake-gateway/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env", "error", err)
	}

	cfg := loadConfig()
	hub := notify.NewHub()

	// ASR backends
	asrBackends := map[string]voice.Transcriber{}
	if cfg.whisperURL != "" {
		asrBackends["whisper-server"] = voice.NewWhisperClient(cfg.whisperURL, cfg.asrPoolSize)
	}
	asrRouter := voice.NewTranscriberRouter(asrBackends, "whisper-server")

	// LLM backends
	llmBackends := map[string]voice.Responder{
		"ollama": voice.NewOllamaResponder(cfg.ollamaURL, cfg.ollamaModel, cfg.llmMaxTokens, cfg.llmPoolSize),
	}
	if cfg.openaiAPIKey != "" {
		provider := agents.NewOpenAIProvider(agents.OpenAIProviderParams{
			APIKey:       param.NewOpt(cfg.openaiAPIKey),
			UseResponses: param.NewOpt(false),
		})
		llmBackends["openai"] = voice.NewAgentResponder(provider, cfg.openaiModel, cfg.llmMaxTokens)
	}
	llmRouter := voice.NewResponderRouter(llmBackends, "ollama")

	// TTS is soft-disabled without a real credential.
	var ttsRouter *voice.SynthesizerRouter
	if voice.SpeechEnabled(cfg.elevenlabsAPIKey) {
		ttsHTTP := voice.NewPooledHTTPClient(cfg.ttsPoolSize, 30*time.Second)
		ttsRouter = voice.NewSynthesizerRouter(map[string]voice.Synthesizer{
			"elevenlabs": voice.NewElevenLabsSynthesizer(cfg.elevenlabsAPIKey, cfg.elevenlabsVoiceID, cfg.elevenlabsModelID, ttsHTTP),
		}, "elevenlabs")
	} else {
		slog.Info("speech synthesis disabled", "reason", "no usable credential")
	}

	voiceSvc := voice.NewService(voice.Config{
		Transcribers: asrRouter,
		Responders:   llmRouter,
		Synthesizers: ttsRouter,
		SystemPrompt: cfg.llmSystemPrompt,
	})

	var auditStore *audit.Store
	var auditRec *audit.Recorder
	if cfg.auditDatabaseURL != "" {
		var err error
		auditStore, err = audit.Open(cfg.auditDatabaseURL)
		if err != nil {
			slog.Error("audit store", "error", err)
			os.Exit(1)
		}
		auditRec = audit.NewRecorder(auditStore, hub)
	} else {
		slog.Warn("audit log disabled", "reason", "AUDIT_DATABASE_URL not set")
	}

	var sessionStore *sessionlog.Store
	var sessionRec *sessionlog.Recorder
	if cfg.sessionLogPath != "" {
		initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
		var err error
		sessionStore, err = sessionlog.Open(initCtx, cfg.sessionLogPath)
		initCancel()
		if err != nil {
			slog.Warn("session log disabled", "error", err)
		} else {
			sessionRec = sessionlog.NewRecorder(sessionStore)
		}
	}

	monitor := upstream.NewMonitor(upstreamServices(cfg))

	wsHandler := ws.NewHandler(ws.HandlerConfig{
		Voice:         voiceSvc,
		Sessions:      sessionRec,
		Hub:           hub,
		MaxConcurrent: cfg.maxConcurrentSessions,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		voiceSvc:   voiceSvc,
		auditStore: auditStore,
		auditRec:   auditRec,
		sessions:   sessionStore,
		monitor:    monitor,
		wsHandler:  wsHandler,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr,
		"max_concurrent", cfg.maxConcurrentSessions,
		"speech_enabled", ttsRouter != nil,
		"audit_enabled", auditStore != nil)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	// ListenAndServe returns as soon as the listener closes; wait for
	// Shutdown to finish draining handlers before flushing the writers.
	// WebSocket sessions are hijacked connections Shutdown never waits
	// for; the recorders drop their late writes safely.
	<-shutdownDone

	// Flush the async writers before closing their stores.
	auditRec.Close()
	sessionRec.Close()
	if auditStore != nil {
		auditStore.Close()
	}
	if sessionStore != nil {
		sessionStore.Close()
	}

	slog.Info("gateway stopped")
}

func upstreamServices(cfg config) []upstream.Service {
	var services []upstream.Service
	if cfg.whisperURL != "" {
		services = append(services, upstream.Service{
			Name:      "whisper-server",
			Category:  "asr",
			HealthURL: cfg.whisperURL + "/health",
		})
	}
	if cfg.ollamaURL != "" {
		services = append(services, upstream.Service{
			Name:      "ollama",
			Category:  "llm",
			HealthURL: cfg.ollamaURL + "/api/version",
		})
	}
	return services
}
