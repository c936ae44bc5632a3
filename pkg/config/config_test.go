package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr=%q, want :8080", cfg.Addr)
	}
	if cfg.STTProvider != STTDeepgram {
		t.Fatalf("STTProvider=%q, want deepgram", cfg.STTProvider)
	}
	if cfg.SampleRate != 8000 || cfg.ChunkDurationMS != 300 {
		t.Fatalf("audio defaults = %d/%d, want 8000/300", cfg.SampleRate, cfg.ChunkDurationMS)
	}
	if !cfg.BargeInEnabled {
		t.Fatalf("BargeInEnabled=false, want true by default")
	}
	if cfg.HistoryWindow != 10 {
		t.Fatalf("HistoryWindow=%d, want 10", cfg.HistoryWindow)
	}
	if cfg.Hours.Start != "08:00" || cfg.Hours.End != "17:00" {
		t.Fatalf("hours = %s-%s, want 08:00-17:00", cfg.Hours.Start, cfg.Hours.End)
	}
	for d := 1; d <= 5; d++ {
		if _, ok := cfg.Hours.Days[d]; !ok {
			t.Fatalf("weekday %d missing from default business days", d)
		}
	}
	if _, ok := cfg.Hours.Days[6]; ok {
		t.Fatalf("Saturday present in default business days")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("CALLWISE_ADDR", ":9999")
	t.Setenv("CALLWISE_LLM_PROVIDER", "openai")
	t.Setenv("CALLWISE_AUDIO_CHUNK_DURATION_MS", "120")
	t.Setenv("CALLWISE_BARGE_IN_ENABLED", "false")
	t.Setenv("CALLWISE_WS_WRITE_TIMEOUT", "2s")
	t.Setenv("CALLWISE_BUSINESS_DAYS", "1,3,5,6")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("Addr=%q, want :9999", cfg.Addr)
	}
	if cfg.LLMProvider != LLMOpenAI {
		t.Fatalf("LLMProvider=%q, want openai", cfg.LLMProvider)
	}
	if cfg.ChunkDurationMS != 120 {
		t.Fatalf("ChunkDurationMS=%d, want 120", cfg.ChunkDurationMS)
	}
	if cfg.BargeInEnabled {
		t.Fatalf("BargeInEnabled=true, want false")
	}
	if cfg.WSWriteTimeout != 2*time.Second {
		t.Fatalf("WSWriteTimeout=%v, want 2s", cfg.WSWriteTimeout)
	}
	if _, ok := cfg.Hours.Days[6]; !ok {
		t.Fatalf("Saturday missing after override")
	}
	if _, ok := cfg.Hours.Days[2]; ok {
		t.Fatalf("Tuesday present after override")
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"bad stt provider", "CALLWISE_STT_PROVIDER", "siri", "CALLWISE_STT_PROVIDER"},
		{"bad llm provider", "CALLWISE_LLM_PROVIDER", "claude", "CALLWISE_LLM_PROVIDER"},
		{"bad store", "CALLWISE_STORE", "sqlite", "CALLWISE_STORE"},
		{"bad weekday", "CALLWISE_BUSINESS_DAYS", "1,8", "ISO weekdays"},
		{"bad hours", "CALLWISE_BUSINESS_HOURS_START", "25:00", "CALLWISE_BUSINESS_HOURS_START"},
		{"bad hours format", "CALLWISE_BUSINESS_HOURS_END", "5pm", "CALLWISE_BUSINESS_HOURS_END"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("LoadFromEnv accepted %s=%q", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestPostgresStoreRequiresDatabaseURL(t *testing.T) {
	t.Setenv("CALLWISE_STORE", "postgres")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("LoadFromEnv accepted postgres store without CALLWISE_DATABASE_URL")
	}
	t.Setenv("CALLWISE_DATABASE_URL", "postgres://localhost/callwise")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Store != StorePostgres {
		t.Fatalf("Store=%q, want postgres", cfg.Store)
	}
}
