package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/callwise/callwise/pkg/audio"
)

// WhisperOptions configures the batch recognizer.
type WhisperOptions struct {
	Model      string // default "whisper-1"
	Language   string // default "en"
	BaseURL    string // default "https://api.openai.com/v1"
	SampleRate int    // default 8000
	// BatchBytes is how much PCM to buffer before transcribing.
	// Defaults to 2 seconds at the configured sample rate.
	BatchBytes int
}

// WhisperRecognizer buffers PCM and transcribes it in batches through an
// OpenAI-compatible transcription endpoint. Higher latency than streaming
// recognizers; it only ever emits final results.
type WhisperRecognizer struct {
	apiKey string
	opts   WhisperOptions
	client *http.Client
	codec  *audio.Codec
	log    *slog.Logger

	mu          sync.Mutex
	buf         []byte
	processing  bool
	transcripts chan TranscriptEvent
	connected   atomic.Bool
	closed      atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewWhisper(apiKey string, opts WhisperOptions, log *slog.Logger) *WhisperRecognizer {
	if opts.Model == "" {
		opts.Model = "whisper-1"
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 8000
	}
	if opts.BatchBytes == 0 {
		opts.BatchBytes = opts.SampleRate * 2 * 2
	}
	if log == nil {
		log = slog.Default()
	}
	return &WhisperRecognizer{
		apiKey:      apiKey,
		opts:        opts,
		client:      &http.Client{},
		codec:       audio.NewCodec(opts.SampleRate, 1),
		log:         log,
		transcripts: make(chan TranscriptEvent, 100),
	}
}

// Connect only arms the recognizer; there is no persistent upstream session.
func (w *WhisperRecognizer) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
	w.connected.Store(true)
	return nil
}

func (w *WhisperRecognizer) SendAudio(pcm []byte) error {
	if !w.connected.Load() {
		return ErrNotConnected
	}

	w.mu.Lock()
	w.buf = append(w.buf, pcm...)
	start := len(w.buf) >= w.opts.BatchBytes && !w.processing
	if start {
		w.processing = true
	}
	w.mu.Unlock()

	if start {
		w.wg.Add(1)
		go w.processBuffer()
	}
	return nil
}

func (w *WhisperRecognizer) processBuffer() {
	defer w.wg.Done()

	w.mu.Lock()
	data := w.buf
	w.buf = nil
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.processing = false
		w.mu.Unlock()
	}()

	if len(data) == 0 {
		return
	}

	text, err := w.transcribe(w.ctx, data)
	if err != nil {
		w.log.Error("whisper transcription failed", "error", err)
		return
	}
	if text == "" {
		return
	}

	ev := TranscriptEvent{
		Text:       text,
		IsFinal:    true,
		Confidence: 1,
		Language:   w.opts.Language,
	}
	select {
	case w.transcripts <- ev:
	case <-w.ctx.Done():
	}
}

func (w *WhisperRecognizer) transcribe(ctx context.Context, pcm []byte) (string, error) {
	wav := w.codec.ToWAV(pcm, w.opts.SampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	if err := mw.WriteField("model", w.opts.Model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.WriteField("language", w.opts.Language); err != nil {
		return "", fmt.Errorf("write language field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.opts.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whisper error %d: %s", resp.StatusCode, string(b))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return out.Text, nil
}

// Disconnect flushes any buffered audio synchronously, then closes the
// transcript channel. Safe to call more than once.
func (w *WhisperRecognizer) Disconnect() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.connected.Store(false)

	w.mu.Lock()
	data := w.buf
	w.buf = nil
	pending := w.processing
	w.mu.Unlock()

	if len(data) > 0 && !pending && w.ctx != nil {
		if text, err := w.transcribe(w.ctx, data); err == nil && text != "" {
			select {
			case w.transcripts <- TranscriptEvent{Text: text, IsFinal: true, Confidence: 1, Language: w.opts.Language}:
			default:
			}
		}
	}

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	close(w.transcripts)
	return nil
}

func (w *WhisperRecognizer) Transcripts() <-chan TranscriptEvent {
	return w.transcripts
}
