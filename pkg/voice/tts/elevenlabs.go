package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const elevenLabsDefaultBaseURL = "https://api.elevenlabs.io"

// ElevenLabsOptions configures the synthesizer.
type ElevenLabsOptions struct {
	VoiceID         string  // default Rachel
	Model           string  // default "eleven_turbo_v2_5"
	Stability       float64 // default 0.5
	SimilarityBoost float64 // default 0.75
	// OptimizeLatency trades quality for latency, 0-4.
	OptimizeLatency int
	SampleRate      int // output PCM rate, default 8000
}

// ElevenLabsSynthesizer streams PCM from the ElevenLabs HTTP streaming
// endpoint.
type ElevenLabsSynthesizer struct {
	apiKey     string
	opts       ElevenLabsOptions
	httpClient *http.Client
	baseURL    string
}

func NewElevenLabs(apiKey string, opts ElevenLabsOptions) *ElevenLabsSynthesizer {
	if opts.VoiceID == "" {
		opts.VoiceID = "21m00Tcm4TlvDq8ikWAM"
	}
	if opts.Model == "" {
		opts.Model = "eleven_turbo_v2_5"
	}
	if opts.Stability == 0 {
		opts.Stability = 0.5
	}
	if opts.SimilarityBoost == 0 {
		opts.SimilarityBoost = 0.75
	}
	if opts.OptimizeLatency == 0 {
		opts.OptimizeLatency = 3
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 8000
	}
	return &ElevenLabsSynthesizer{
		apiKey:     strings.TrimSpace(apiKey),
		opts:       opts,
		httpClient: &http.Client{},
		baseURL:    elevenLabsDefaultBaseURL,
	}
}

// WithBaseURL overrides the API endpoint, used by tests.
func (e *ElevenLabsSynthesizer) WithBaseURL(base string) *ElevenLabsSynthesizer {
	base = strings.TrimSpace(base)
	if base != "" {
		e.baseURL = base
	}
	return e
}

func (e *ElevenLabsSynthesizer) SynthesizeStream(ctx context.Context, text string) (*Stream, error) {
	stream := NewStream()
	if strings.TrimSpace(text) == "" {
		stream.Finish(nil)
		return stream, nil
	}

	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": e.opts.Model,
		"voice_settings": map[string]float64{
			"stability":        e.opts.Stability,
			"similarity_boost": e.opts.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrSynthesis, err)
	}

	u := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=pcm_%d&optimize_streaming_latency=%s",
		e.baseURL, e.opts.VoiceID, e.opts.SampleRate, strconv.Itoa(e.opts.OptimizeLatency))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrSynthesis, err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrSynthesis, resp.StatusCode, string(body))
	}

	go func() {
		defer resp.Body.Close()
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !stream.Push(chunk) {
					return
				}
			}
			if err == io.EOF {
				stream.Finish(nil)
				return
			}
			if err != nil {
				stream.Finish(fmt.Errorf("%w: read body: %v", ErrSynthesis, err))
				return
			}
		}
	}()

	return stream, nil
}
