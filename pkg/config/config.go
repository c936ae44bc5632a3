// Package config loads gateway configuration from the environment. The core
// packages never read env vars themselves; everything they need is passed in
// from this value at construction time.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type STTProviderName string

const (
	STTDeepgram STTProviderName = "deepgram"
	STTWhisper  STTProviderName = "whisper"
)

type LLMProviderName string

const (
	LLMGemini LLMProviderName = "gemini"
	LLMOpenAI LLMProviderName = "openai"
)

type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
)

// BusinessHours is the schedule used for off-hours handling. Days are ISO
// weekdays (Monday=1 .. Sunday=7); Start/End are "HH:MM" with End exclusive.
type BusinessHours struct {
	Days  map[int]struct{}
	Start string
	End   string
}

type Config struct {
	Addr string

	// HTTP server limits.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// Provider selection, fixed at process start.
	STTProvider STTProviderName
	LLMProvider LLMProviderName
	Store       StoreBackend

	// Telephony audio shape.
	SampleRate      int
	Channels        int
	ChunkDurationMS int
	BargeInEnabled  bool

	// Per-call WebSocket limits.
	MaxJSONMessageBytes int64
	WSWriteTimeout      time.Duration
	WSPingInterval      time.Duration
	OutboundQueueSize   int

	// Conversation settings.
	HistoryWindow        int
	MaxFailedRecognition int
	Greeting             string
	BusinessName         string
	Hours                BusinessHours

	// FAQPath points at the knowledge-base JSON file. Empty disables it.
	FAQPath string

	// Provider timeouts.
	STTTimeout time.Duration
	TTSTimeout time.Duration
	LLMTimeout time.Duration

	// Transcript drain re-check interval; teardown is observed at this
	// granularity even when the recognizer is silent.
	TranscriptPoll time.Duration

	// Deepgram
	DeepgramAPIKey string
	DeepgramModel  string
	DeepgramLang   string

	// ElevenLabs
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModel   string

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// OpenAI-compatible
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Postgres
	DatabaseURL string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                 envOr("CALLWISE_ADDR", ":8080"),
		ReadHeaderTimeout:    envDurationOr("CALLWISE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:  envDurationOr("CALLWISE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		STTProvider:          STTProviderName(envOr("CALLWISE_STT_PROVIDER", string(STTDeepgram))),
		LLMProvider:          LLMProviderName(envOr("CALLWISE_LLM_PROVIDER", string(LLMGemini))),
		Store:                StoreBackend(envOr("CALLWISE_STORE", string(StoreMemory))),
		SampleRate:           envIntOr("CALLWISE_AUDIO_SAMPLE_RATE", 8000),
		Channels:             envIntOr("CALLWISE_AUDIO_CHANNELS", 1),
		ChunkDurationMS:      envIntOr("CALLWISE_AUDIO_CHUNK_DURATION_MS", 300),
		BargeInEnabled:       envBoolOr("CALLWISE_BARGE_IN_ENABLED", true),
		MaxJSONMessageBytes:  envInt64Or("CALLWISE_MAX_JSON_MESSAGE_BYTES", 64*1024),
		WSWriteTimeout:       envDurationOr("CALLWISE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:       envDurationOr("CALLWISE_WS_PING_INTERVAL", 20*time.Second),
		OutboundQueueSize:    envIntOr("CALLWISE_OUTBOUND_QUEUE_SIZE", 128),
		HistoryWindow:        envIntOr("CALLWISE_HISTORY_WINDOW", 10),
		MaxFailedRecognition: envIntOr("CALLWISE_MAX_FAILED_ASR_ATTEMPTS", 2),
		Greeting:             envOr("CALLWISE_GREETING", "Hello! Thank you for calling. How may I help you today?"),
		BusinessName:         envOr("CALLWISE_BUSINESS_NAME", "Our Office"),
		FAQPath:              os.Getenv("CALLWISE_FAQ_PATH"),
		Hours: BusinessHours{
			Days:  map[int]struct{}{},
			Start: envOr("CALLWISE_BUSINESS_HOURS_START", "08:00"),
			End:   envOr("CALLWISE_BUSINESS_HOURS_END", "17:00"),
		},
		STTTimeout:        envDurationOr("CALLWISE_STT_TIMEOUT", 5*time.Second),
		TTSTimeout:        envDurationOr("CALLWISE_TTS_TIMEOUT", 30*time.Second),
		LLMTimeout:        envDurationOr("CALLWISE_LLM_TIMEOUT", 10*time.Second),
		TranscriptPoll:    envDurationOr("CALLWISE_TRANSCRIPT_POLL", 250*time.Millisecond),
		DeepgramAPIKey:    os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     envOr("DEEPGRAM_MODEL", "nova-2"),
		DeepgramLang:      envOr("DEEPGRAM_LANGUAGE", "en-US"),
		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: envOr("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModel:   envOr("ELEVENLABS_MODEL", "eleven_turbo_v2_5"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       envOr("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       envOr("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:     envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		DatabaseURL:       os.Getenv("CALLWISE_DATABASE_URL"),
	}

	for _, d := range splitCSV(envOr("CALLWISE_BUSINESS_DAYS", "1,2,3,4,5")) {
		n, err := strconv.Atoi(d)
		if err != nil || n < 1 || n > 7 {
			return Config{}, fmt.Errorf("CALLWISE_BUSINESS_DAYS entries must be ISO weekdays 1-7")
		}
		cfg.Hours.Days[n] = struct{}{}
	}

	switch cfg.STTProvider {
	case STTDeepgram, STTWhisper:
	default:
		return Config{}, fmt.Errorf("CALLWISE_STT_PROVIDER must be one of deepgram|whisper")
	}
	switch cfg.LLMProvider {
	case LLMGemini, LLMOpenAI:
	default:
		return Config{}, fmt.Errorf("CALLWISE_LLM_PROVIDER must be one of gemini|openai")
	}
	switch cfg.Store {
	case StoreMemory, StorePostgres:
	default:
		return Config{}, fmt.Errorf("CALLWISE_STORE must be one of memory|postgres")
	}
	if cfg.Store == StorePostgres && strings.TrimSpace(cfg.DatabaseURL) == "" {
		return Config{}, fmt.Errorf("CALLWISE_DATABASE_URL is required when CALLWISE_STORE=postgres")
	}
	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("CALLWISE_AUDIO_SAMPLE_RATE must be > 0")
	}
	if cfg.Channels <= 0 {
		return Config{}, fmt.Errorf("CALLWISE_AUDIO_CHANNELS must be > 0")
	}
	if cfg.ChunkDurationMS <= 0 {
		return Config{}, fmt.Errorf("CALLWISE_AUDIO_CHUNK_DURATION_MS must be > 0")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("CALLWISE_HISTORY_WINDOW must be > 0")
	}
	if cfg.MaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("CALLWISE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.TranscriptPoll <= 0 {
		return Config{}, fmt.Errorf("CALLWISE_TRANSCRIPT_POLL must be > 0")
	}
	if err := validateClock(cfg.Hours.Start); err != nil {
		return Config{}, fmt.Errorf("CALLWISE_BUSINESS_HOURS_START: %w", err)
	}
	if err := validateClock(cfg.Hours.End); err != nil {
		return Config{}, fmt.Errorf("CALLWISE_BUSINESS_HOURS_END: %w", err)
	}

	return cfg, nil
}

func validateClock(v string) error {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%q is not HH:MM", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return fmt.Errorf("%q has invalid hour", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return fmt.Errorf("%q has invalid minute", v)
	}
	return nil
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
