package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const deepgramLiveURL = "wss://api.deepgram.com/v1/listen"

// DeepgramOptions configures a live Deepgram session.
type DeepgramOptions struct {
	Model      string // default "nova-2"
	Language   string // default "en-US"
	SampleRate int    // default 8000
	Channels   int    // default 1

	// HandshakeTimeout bounds the WebSocket dial, default 10s.
	HandshakeTimeout time.Duration
}

// DeepgramRecognizer streams linear16 PCM to Deepgram's live transcription
// WebSocket and emits interim and final transcripts.
type DeepgramRecognizer struct {
	apiKey string
	opts   DeepgramOptions
	log    *slog.Logger

	conn        *websocket.Conn
	transcripts chan TranscriptEvent
	done        chan struct{}
	connected   atomic.Bool
	closed      atomic.Bool
	writeMu     sync.Mutex
	cancel      context.CancelFunc
}

// NewDeepgram creates a recognizer for one call. Connect must be called
// before SendAudio.
func NewDeepgram(apiKey string, opts DeepgramOptions, log *slog.Logger) *DeepgramRecognizer {
	if opts.Model == "" {
		opts.Model = "nova-2"
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 8000
	}
	if opts.Channels == 0 {
		opts.Channels = 1
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &DeepgramRecognizer{
		apiKey:      apiKey,
		opts:        opts,
		log:         log,
		transcripts: make(chan TranscriptEvent, 100),
		done:        make(chan struct{}),
	}
}

func (d *DeepgramRecognizer) Connect(ctx context.Context) error {
	return d.connectTo(ctx, deepgramLiveURL)
}

func (d *DeepgramRecognizer) connectTo(ctx context.Context, baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("%w: parse url: %v", ErrConnect, err)
	}
	q := u.Query()
	q.Set("model", d.opts.Model)
	q.Set("language", d.opts.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.opts.SampleRate))
	q.Set("channels", strconv.Itoa(d.opts.Channels))
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("vad_events", "true")
	// 1s of silence ends the utterance.
	q.Set("utterance_end_ms", "1000")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: d.opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return fmt.Errorf("%w: status %d: %s", ErrConnect, resp.StatusCode, string(body))
			}
			return fmt.Errorf("%w: status %d: %v", ErrConnect, resp.StatusCode, err)
		}
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.conn = conn
	d.cancel = cancel
	d.connected.Store(true)
	go d.readLoop(ctx)
	return nil
}

func (d *DeepgramRecognizer) readLoop(ctx context.Context) {
	defer func() {
		close(d.transcripts)
		close(d.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := d.conn.ReadMessage()
		if err != nil {
			if !d.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.log.Warn("deepgram read failed", "error", err)
			}
			return
		}

		var msg deepgramResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if alt.Transcript == "" {
				continue
			}
			ev := TranscriptEvent{
				Text:       alt.Transcript,
				IsFinal:    msg.IsFinal,
				Confidence: alt.Confidence,
				Language:   d.opts.Language,
			}
			select {
			case d.transcripts <- ev:
			default:
				d.log.Warn("transcript queue full, dropping result")
			}

		case "Metadata", "UtteranceEnd", "SpeechStarted":
			continue

		case "Error":
			d.log.Error("deepgram error", "description", msg.Description)
			return
		}
	}
}

type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	Description string `json:"description"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (d *DeepgramRecognizer) SendAudio(pcm []byte) error {
	if !d.connected.Load() {
		return ErrNotConnected
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if err := d.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("stt: send audio: %w", err)
	}
	return nil
}

// Disconnect asks Deepgram to flush and close, then drops the connection.
// Safe to call more than once.
func (d *DeepgramRecognizer) Disconnect() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.connected.Store(false)
	if d.cancel != nil {
		d.cancel()
	}
	if d.conn == nil {
		close(d.transcripts)
		close(d.done)
		return nil
	}

	d.writeMu.Lock()
	d.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	d.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	d.writeMu.Unlock()

	return d.conn.Close()
}

func (d *DeepgramRecognizer) Transcripts() <-chan TranscriptEvent {
	return d.transcripts
}

// Done is closed once the read loop has exited.
func (d *DeepgramRecognizer) Done() <-chan struct{} {
	return d.done
}
