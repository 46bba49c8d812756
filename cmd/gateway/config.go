package main

import (
	"github.com/caretide/intake-gateway/internal/env"
)

// defaultSystemPrompt steers the intake assistant when LLM_SYSTEM_PROMPT
// is not set. Kept short so small local models follow it.
const defaultSystemPrompt = "You are a patient intake assistant for a medical clinic. " +
	"Greet the caller, collect the reason for their visit, and answer scheduling " +
	"and prescription refill questions briefly and clearly. Never give medical advice. " +
	"Keep replies to one or two sentences."

type config struct {
	port                  string
	whisperURL            string
	asrPoolSize           int
	ollamaURL             string
	ollamaModel           string
	openaiAPIKey          string
	openaiModel           string
	llmSystemPrompt       string
	llmMaxTokens          int
	llmPoolSize           int
	ttsPoolSize           int
	elevenlabsAPIKey      string
	elevenlabsVoiceID     string
	elevenlabsModelID     string
	auditDatabaseURL      string
	sessionLogPath        string
	maxConcurrentSessions int
}

func loadConfig() config {
	return config{
		port:                  env.Str("GATEWAY_PORT", "8000"),
		whisperURL:            env.Str("WHISPER_SERVER_URL", "http://localhost:8178"),
		asrPoolSize:           env.Int("ASR_POOL_SIZE", 50),
		ollamaURL:             env.Str("OLLAMA_URL", "http://localhost:11434"),
		ollamaModel:           env.Str("OLLAMA_MODEL", "llama3.2:3b"),
		openaiAPIKey:          env.Str("OPENAI_API_KEY", ""),
		openaiModel:           env.Str("OPENAI_MODEL", "gpt-4o-mini"),
		llmSystemPrompt:       env.Str("LLM_SYSTEM_PROMPT", defaultSystemPrompt),
		llmMaxTokens:          env.Int("LLM_MAX_TOKENS", 150),
		llmPoolSize:           env.Int("LLM_POOL_SIZE", 50),
		ttsPoolSize:           env.Int("TTS_POOL_SIZE", 50),
		elevenlabsAPIKey:      env.Str("ELEVENLABS_API_KEY", ""),
		elevenlabsVoiceID:     env.Str("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		elevenlabsModelID:     env.Str("ELEVENLABS_MODEL_ID", "eleven_turbo_v2_5"),
		auditDatabaseURL:      env.Str("AUDIT_DATABASE_URL", ""),
		sessionLogPath:        env.Str("SESSION_LOG_PATH", "sessions.db"),
		maxConcurrentSessions: env.Int("MAX_CONCURRENT_SESSIONS", 100),
	}
}
