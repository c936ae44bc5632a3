// Package server wires the HTTP surface: health and readiness probes, the
// Prometheus endpoint, and the per-call voice stream WebSocket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callwise/callwise/pkg/config"
	"github.com/callwise/callwise/pkg/convo"
	"github.com/callwise/callwise/pkg/llm"
	"github.com/callwise/callwise/pkg/store"
	"github.com/callwise/callwise/pkg/telephony/session"
	"github.com/callwise/callwise/pkg/voice/stt"
	"github.com/callwise/callwise/pkg/voice/tts"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	st     store.Store
	synth  tts.Synthesizer
	engine *convo.Engine

	draining atomic.Bool
	sessions sync.WaitGroup
}

// New builds the server and its fixed collaborators. The recognizer is the
// only per-call provider; everything else is shared across calls.
func New(ctx context.Context, cfg config.Config, st store.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	responses, err := newResponseEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// The knowledge base is optional; a broken file is a startup error
	// rather than a silent prompt without it.
	var faq convo.FAQ
	if cfg.FAQPath != "" {
		faq, err = convo.LoadFAQ(cfg.FAQPath)
		if err != nil {
			return nil, fmt.Errorf("faq knowledge base: %w", err)
		}
		logger.Info("faq knowledge base loaded", "path", cfg.FAQPath, "entries", len(faq))
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		st:     st,
		synth: tts.NewElevenLabs(cfg.ElevenLabsAPIKey, tts.ElevenLabsOptions{
			VoiceID:    cfg.ElevenLabsVoiceID,
			Model:      cfg.ElevenLabsModel,
			SampleRate: cfg.SampleRate,
		}),
		engine: convo.NewEngine(responses, st, convo.EngineConfig{
			BusinessName:  cfg.BusinessName,
			Hours:         convo.Hours{Days: cfg.Hours.Days, Start: cfg.Hours.Start, End: cfg.Hours.End},
			HistoryWindow: cfg.HistoryWindow,
			FAQ:           faq,
		}, logger),
	}

	s.routes()
	return s, nil
}

func newResponseEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (llm.ResponseEngine, error) {
	switch cfg.LLMProvider {
	case config.LLMGemini:
		engine, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, llm.GeminiOptions{
			Model:   cfg.GeminiModel,
			Timeout: cfg.LLMTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("gemini engine: %w", err)
		}
		return engine, nil
	case config.LLMOpenAI:
		return llm.NewOpenAI(cfg.OpenAIAPIKey, llm.OpenAIOptions{
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.LLMTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func (s *Server) newRecognizer() stt.Recognizer {
	switch s.cfg.STTProvider {
	case config.STTWhisper:
		return stt.NewWhisper(s.cfg.OpenAIAPIKey, stt.WhisperOptions{
			BaseURL:    s.cfg.OpenAIBaseURL,
			SampleRate: s.cfg.SampleRate,
		}, s.logger)
	default:
		return stt.NewDeepgram(s.cfg.DeepgramAPIKey, stt.DeepgramOptions{
			Model:            s.cfg.DeepgramModel,
			Language:         s.cfg.DeepgramLang,
			SampleRate:       s.cfg.SampleRate,
			Channels:         s.cfg.Channels,
			HandshakeTimeout: s.cfg.STTTimeout,
		}, s.logger)
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/readyz", s.handleReady)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/voice/stream", s.handleVoiceStream)
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "draining"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ready",
		"stt":    string(s.cfg.STTProvider),
		"llm":    string(s.cfg.LLMProvider),
		"store":  string(s.cfg.Store),
	})
}

// handleVoiceStream owns one call from upgrade to teardown. The handler
// blocks for the life of the call.
func (s *Server) handleVoiceStream(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}

	conn, err := session.Accept(w, r)
	if err != nil {
		s.logger.Error("voice stream upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess, err := session.New(session.Dependencies{
		Conn:        conn,
		Logger:      s.logger,
		Recognizer:  s.newRecognizer(),
		Synthesizer: s.synth,
		Engine:      s.engine,
		Store:       s.st,
		Config: session.Config{
			SampleRate:           s.cfg.SampleRate,
			Channels:             s.cfg.Channels,
			ChunkDurationMS:      s.cfg.ChunkDurationMS,
			BargeInEnabled:       s.cfg.BargeInEnabled,
			Greeting:             s.cfg.Greeting,
			MaxJSONMessageBytes:  s.cfg.MaxJSONMessageBytes,
			WriteTimeout:         s.cfg.WSWriteTimeout,
			PingInterval:         s.cfg.WSPingInterval,
			OutboundQueueSize:    s.cfg.OutboundQueueSize,
			TranscriptPoll:       s.cfg.TranscriptPoll,
			MaxFailedRecognition: s.cfg.MaxFailedRecognition,
			SpeakTimeout:         s.cfg.TTSTimeout,
		},
	})
	if err != nil {
		s.logger.Error("session setup failed", "remote", r.RemoteAddr, "error", err)
		_ = conn.Close()
		return
	}

	s.sessions.Add(1)
	defer s.sessions.Done()
	if err := sess.Run(); err != nil {
		s.logger.Error("call session ended with error", "remote", r.RemoteAddr, "error", err)
	}
}

// SetDraining flips readiness off; new voice streams are refused while
// in-flight calls continue.
func (s *Server) SetDraining() { s.draining.Store(true) }

// WaitSessions blocks until every live call has ended or ctx expires,
// reporting whether the drain completed.
func (s *Server) WaitSessions(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
