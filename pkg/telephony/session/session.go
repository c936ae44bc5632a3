// Package session runs one phone call end to end: the wire-protocol event
// loop, audio framing, transcript-driven turns, playback with barge-in, and
// durable teardown.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/callwise/callwise/pkg/audio"
	"github.com/callwise/callwise/pkg/convo"
	"github.com/callwise/callwise/pkg/store"
	"github.com/callwise/callwise/pkg/telephony/protocol"
	"github.com/callwise/callwise/pkg/voice/stt"
	"github.com/callwise/callwise/pkg/voice/tts"
)

const maxCanceledUtterances = 64

// ConversationEngine is the turn lifecycle collaborator.
type ConversationEngine interface {
	ProcessTurn(ctx context.Context, cc *convo.ConversationContext, utterance string) *convo.ConversationTurn
	GenerateSummary(ctx context.Context, cc *convo.ConversationContext) (*convo.CallSummary, error)
}

// Config carries everything the session needs at construction. The session
// never reads ambient settings.
type Config struct {
	SampleRate      int
	Channels        int
	ChunkDurationMS int
	BargeInEnabled  bool
	Greeting        string

	MaxJSONMessageBytes int64
	WriteTimeout        time.Duration
	PingInterval        time.Duration
	ReadTimeout         time.Duration
	OutboundQueueSize   int

	// TranscriptPoll bounds the drain's wait so teardown is observed even
	// with a silent recognizer.
	TranscriptPoll time.Duration

	// SpeakTimeout caps one full synthesis run.
	SpeakTimeout time.Duration

	// MaxFailedRecognition caps consecutive spoken apologies after failed
	// playback runs.
	MaxFailedRecognition int

	// DrainGrace bounds how long an in-flight turn may keep running after
	// the wire loop exits, so its rows land before the call is finalized.
	DrainGrace time.Duration
}

type Dependencies struct {
	Conn        wsConn
	Logger      *slog.Logger
	Recognizer  stt.Recognizer
	Synthesizer tts.Synthesizer
	Engine      ConversationEngine
	Store       store.Store
	Config      Config
	Now         func() time.Time
}

// CallSession orchestrates a single call. One call is one independent
// concurrency unit; nothing here is shared across calls except the store.
type CallSession struct {
	conn   wsConn
	log    *slog.Logger
	rec    stt.Recognizer
	synth  tts.Synthesizer
	engine ConversationEngine
	store  store.Store
	cfg    Config
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	codec    *audio.Codec
	acc      *audio.Accumulator
	playback playbackState

	canceledMu    sync.Mutex
	canceledSet   map[int64]struct{}
	canceledOrder []int64

	// Owned by the wire-event loop after start; read by the drain.
	stateMu   sync.Mutex
	streamSID string
	callSID   string
	callCtx   *convo.ConversationContext

	recClose sync.Once
	teardown sync.Once
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Accept upgrades an HTTP request to the call's protocol channel.
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("session: upgrade: %w", err)
	}
	return conn, nil
}

func New(deps Dependencies) (*CallSession, error) {
	if deps.Conn == nil {
		return nil, errors.New("session: connection is required")
	}
	if deps.Recognizer == nil {
		return nil, errors.New("session: recognizer is required")
	}
	if deps.Synthesizer == nil {
		return nil, errors.New("session: synthesizer is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("session: conversation engine is required")
	}
	if deps.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	cfg := deps.Config
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 8000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.ChunkDurationMS <= 0 {
		cfg.ChunkDurationMS = 300
	}
	if cfg.Greeting == "" {
		cfg.Greeting = convo.Greeting
	}
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = 128
	}
	if cfg.TranscriptPoll <= 0 {
		cfg.TranscriptPoll = 250 * time.Millisecond
	}
	if cfg.SpeakTimeout <= 0 {
		cfg.SpeakTimeout = 30 * time.Second
	}
	if cfg.MaxFailedRecognition <= 0 {
		cfg.MaxFailedRecognition = 2
	}
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CallSession{
		conn:             deps.Conn,
		log:              deps.Logger,
		rec:              deps.Recognizer,
		synth:            deps.Synthesizer,
		engine:           deps.Engine,
		store:            deps.Store,
		cfg:              cfg,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, 8),
		outboundNormal:   make(chan outboundFrame, cfg.OutboundQueueSize),
		codec:            audio.NewCodec(cfg.SampleRate, cfg.Channels),
		acc:              audio.NewAccumulator(cfg.SampleRate, cfg.ChunkDurationMS),
		canceledSet:      make(map[int64]struct{}),
	}, nil
}

type inboundFrame struct {
	data []byte
	err  error
}

// Run executes the event loop until the call ends. It always returns with
// the recognizer disconnected and the transport closed.
func (s *CallSession) Run() error {
	defer s.teardownOnce()

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	if err := s.rec.Connect(s.ctx); err != nil {
		return fmt.Errorf("session: recognizer connect: %w", err)
	}

	readCh := make(chan inboundFrame, 64)
	go s.readLoop(readCh)

	writerErrCh := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:         s.conn,
			ctx:        s.ctx,
			priority:   s.outboundPriority,
			normal:     s.outboundNormal,
			ping:       s.cfg.PingInterval,
			timeout:    s.cfg.WriteTimeout,
			isCanceled: s.isCanceled,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	drainDone := make(chan struct{})
	go s.drainTranscripts(drainDone)

	outcome, runErr := s.loop(readCh, writerErrCh)
	if runErr != nil {
		outcome = store.OutcomeError
	}

	// Settle the drain before finalizing: disconnecting the recognizer
	// closes its transcript channel, so an in-flight turn persists its rows
	// and the drain exits before the summary counts them. Past the grace,
	// cancel and join rather than wait out a stuck provider.
	s.disconnectRecognizer()
	settle := time.NewTimer(s.cfg.DrainGrace)
	select {
	case <-drainDone:
	case <-settle.C:
		s.cancel()
		<-drainDone
	}
	settle.Stop()

	s.finalize(outcome, runErr)
	metricSessionsEnded.WithLabelValues(outcome).Inc()

	// Give the writer a moment to flush a queued clear or mark.
	s.cancel()
	flush := 100 * time.Millisecond
	if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < flush {
		flush = s.cfg.WriteTimeout
	}
	timer := time.NewTimer(flush)
	defer timer.Stop()
	select {
	case <-writerErrCh:
	case <-timer.C:
	}
	return runErr
}

// loop dispatches wire events until a stop event, transport failure, or
// writer failure. A failure handling any single event is logged and the
// loop continues.
func (s *CallSession) loop(readCh <-chan inboundFrame, writerErrCh <-chan error) (string, error) {
	for {
		select {
		case frame := <-readCh:
			if frame.err != nil {
				if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Info("transport closed", "call_sid", s.callSIDForLog())
					return store.OutcomeHungUp, nil
				}
				s.log.Warn("transport read failed", "call_sid", s.callSIDForLog(), "error", frame.err)
				return store.OutcomeHungUp, nil
			}
			stop, err := s.dispatch(frame.data)
			if err != nil {
				s.log.Error("event handling failed", "call_sid", s.callSIDForLog(), "error", err)
			}
			if stop {
				return store.OutcomeCompleted, nil
			}
		case err := <-writerErrCh:
			if err != nil {
				s.log.Warn("transport write failed", "call_sid", s.callSIDForLog(), "error", err)
			}
			return store.OutcomeHungUp, err
		case <-s.ctx.Done():
			return store.OutcomeHungUp, nil
		}
	}
}

func (s *CallSession) readLoop(readCh chan<- inboundFrame) {
	for {
		_, data, err := s.conn.ReadMessage()
		frame := inboundFrame{data: data, err: err}
		select {
		case readCh <- frame:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// dispatch handles one wire event. The bool result is true on stop.
func (s *CallSession) dispatch(data []byte) (bool, error) {
	msg, err := protocol.Decode(data)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			return false, fmt.Errorf("decode %s: %w", de.Code, err)
		}
		return false, err
	}

	switch msg.Event {
	case protocol.EventStart:
		return false, s.handleStart(msg)
	case protocol.EventMedia:
		return false, s.handleMedia(msg)
	case protocol.EventMark:
		s.handleMark(msg)
		return false, nil
	case protocol.EventStop:
		s.log.Info("call stopped", "call_sid", s.callSIDForLog())
		return true, nil
	}
	return false, nil
}

func (s *CallSession) handleStart(msg protocol.InboundMessage) error {
	caller := "unknown"
	if v, ok := msg.Start.CustomParameters["From"]; ok && v != "" {
		caller = v
	}

	s.log.Info("call started",
		"call_sid", msg.Start.CallSID,
		"stream_sid", msg.StreamSID,
		"caller", maskPhone(caller))

	call := &store.Call{
		CallSID:     msg.Start.CallSID,
		CallerPhone: sanitizePhone(caller),
	}
	if err := s.store.CreateCall(s.ctx, call); err != nil {
		return fmt.Errorf("create call record: %w", err)
	}

	cc := convo.NewContext(call.ID, msg.Start.CallSID, caller)
	s.stateMu.Lock()
	s.streamSID = msg.StreamSID
	s.callSID = msg.Start.CallSID
	s.callCtx = cc
	s.stateMu.Unlock()

	if err := s.store.AppendAudit(s.ctx, &store.AuditEntry{
		CallID:    call.ID,
		EventType: store.EventCallStarted,
		Data:      map[string]any{"call_sid": msg.Start.CallSID, "stream_sid": msg.StreamSID},
	}); err != nil {
		s.log.Error("audit write failed", "call_sid", msg.Start.CallSID, "error", err)
	}

	metricSessionsStarted.Inc()

	if err := s.speak(s.cfg.Greeting); err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	return nil
}

func (s *CallSession) handleMedia(msg protocol.InboundMessage) error {
	pcm, err := s.codec.DecodeMuLaw(msg.Media.Payload)
	if err != nil {
		// Malformed frame: drop it, keep the call alive.
		metricFramesDropped.Inc()
		return fmt.Errorf("media frame: %w", err)
	}

	chunk := s.acc.Add(pcm)
	if chunk == nil {
		return nil
	}

	if s.cfg.BargeInEnabled && s.playback.speakingNow() {
		s.bargeIn()
	}

	if err := s.rec.SendAudio(chunk); err != nil {
		return fmt.Errorf("forward audio: %w", err)
	}
	return nil
}

func (s *CallSession) handleMark(msg protocol.InboundMessage) {
	s.log.Debug("mark received", "name", msg.Mark.Name, "call_sid", s.callSIDForLog())
	if msg.Mark.Name == protocol.MarkEndOfSpeech {
		s.playback.finish()
	}
}

// bargeIn interrupts an in-flight playback: the speak loop halts after at
// most one further chunk, frames already queued for that run are dropped,
// and a clear frame preempts everything else on the wire. A no-op when
// nothing is playing.
func (s *CallSession) bargeIn() {
	utterance, ok := s.playback.interrupt()
	if !ok {
		return
	}
	s.cancelUtterance(utterance)

	payload, err := json.Marshal(protocol.NewClear(s.streamSIDForWire()))
	if err != nil {
		s.log.Error("marshal clear frame", "error", err)
		return
	}
	select {
	case s.outboundPriority <- outboundFrame{payload: payload}:
	case <-s.ctx.Done():
	}

	metricBargeIns.Inc()
	s.log.Info("barge-in, playback stopped", "call_sid", s.callSIDForLog())
}

// drainTranscripts consumes recognizer output for the life of the session.
// Finals are processed one at a time in arrival order; partials are only
// logged. The ticker bounds the wait so cancellation is seen promptly.
func (s *CallSession) drainTranscripts(done chan<- struct{}) {
	defer close(done)

	recheck := time.NewTicker(s.cfg.TranscriptPoll)
	defer recheck.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.rec.Transcripts():
			if !ok {
				return
			}
			if !ev.IsFinal || strings.TrimSpace(ev.Text) == "" {
				s.log.Debug("partial transcript", "text", ev.Text)
				continue
			}
			s.log.Info("final transcript", "call_sid", s.callSIDForLog(), "text", ev.Text)
			s.handleUtterance(ev.Text)
		case <-recheck.C:
		}
	}
}

// handleUtterance runs one conversation turn and speaks the result. A
// failure here must not end the call; the caller hears an apology instead.
func (s *CallSession) handleUtterance(text string) {
	s.stateMu.Lock()
	cc := s.callCtx
	s.stateMu.Unlock()
	if cc == nil {
		s.log.Error("transcript before start event", "text", text)
		return
	}

	started := s.now()
	turn := s.engine.ProcessTurn(s.ctx, cc, text)
	metricTurns.Inc()
	metricTurnLatency.Observe(s.now().Sub(started).Seconds())

	s.log.Info("turn processed",
		"call_sid", cc.CallSID,
		"turn", turn.TurnNo,
		"action", turn.Action,
		"latency_ms", turn.LatencyMS)

	if err := s.speak(turn.AssistantText); err != nil {
		s.log.Error("response playback failed", "call_sid", cc.CallSID, "error", err)
		cc.FailedASR++
		if cc.FailedASR > s.cfg.MaxFailedRecognition {
			s.log.Warn("apology limit reached, staying silent", "call_sid", cc.CallSID, "failures", cc.FailedASR)
			return
		}
		if err := s.speak(convo.RecognitionApology); err != nil {
			s.log.Error("apology playback failed", "call_sid", cc.CallSID, "error", err)
		}
		return
	}
	cc.FailedASR = 0
}

// speak synthesizes text and streams it to the caller as companded media
// frames, honoring the stop flag between chunks, then queues the
// end-of-speech mark.
func (s *CallSession) speak(text string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SpeakTimeout)
	defer cancel()

	stream, err := s.synth.SynthesizeStream(ctx, text)
	if err != nil {
		return err
	}
	defer stream.Close()

	utterance := s.playback.begin()
	streamSID := s.streamSIDForWire()

	// TTS chunk boundaries are arbitrary; an odd trailing byte is carried
	// into the next chunk to keep samples whole.
	var carry []byte
	for chunk := range stream.Chunks() {
		if s.playback.stopRequested() {
			break
		}
		data := chunk
		if len(carry) > 0 {
			data = append(carry, chunk...)
			carry = nil
		}
		if len(data)%2 == 1 {
			carry = []byte{data[len(data)-1]}
			data = data[:len(data)-1]
		}
		if len(data) == 0 {
			continue
		}
		payload, err := s.codec.EncodeMuLaw(data)
		if err != nil {
			s.log.Error("encode playback chunk", "call_sid", s.callSIDForLog(), "error", err)
			continue
		}
		frame, err := json.Marshal(protocol.NewMedia(streamSID, payload))
		if err != nil {
			return fmt.Errorf("marshal media frame: %w", err)
		}
		select {
		case s.outboundNormal <- outboundFrame{utterance: utterance, isMedia: true, payload: frame}:
		case <-s.ctx.Done():
			return nil
		}
	}

	// On interrupt, return before consulting Err: the producer may still be
	// mid-stream and Err blocks until it finishes; the deferred Close is
	// what unblocks its next Push. Barge-in already cleared the wire.
	if s.playback.stopRequested() {
		return nil
	}
	if err := stream.Err(); err != nil {
		s.playback.finish()
		return err
	}

	mark, err := json.Marshal(protocol.NewMark(streamSID, protocol.MarkEndOfSpeech))
	if err != nil {
		return fmt.Errorf("marshal mark frame: %w", err)
	}
	select {
	case s.outboundNormal <- outboundFrame{payload: mark}:
	case <-s.ctx.Done():
	}
	return nil
}

// finalize stamps the durable call record once the loop has exited.
func (s *CallSession) finalize(outcome string, runErr error) {
	s.stateMu.Lock()
	cc := s.callCtx
	s.stateMu.Unlock()
	if cc == nil {
		return
	}

	// Detached context: the session context is about to be canceled and
	// the record still has to be written.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 5*time.Second)
	defer cancel()

	if runErr != nil {
		if err := s.store.AppendAudit(ctx, &store.AuditEntry{
			CallID:    cc.CallID,
			EventType: store.EventCallError,
			Data:      map[string]any{"error": runErr.Error()},
			Severity:  store.SeverityError,
		}); err != nil {
			s.log.Error("audit write failed", "call_sid", cc.CallSID, "error", err)
		}
	}

	var summaryText string
	summary, err := s.engine.GenerateSummary(ctx, cc)
	if err != nil {
		s.log.Error("summary generation failed", "call_sid", cc.CallSID, "error", err)
	} else {
		summaryText = summary.SummaryText
		s.log.Info("call summary",
			"call_sid", cc.CallSID,
			"turns", summary.TurnCount,
			"actions", summary.ActionsTaken,
			"summary", summaryText)
	}

	if err := s.store.EndCall(ctx, cc.CallID, outcome, summaryText); err != nil {
		s.log.Error("call record finalize failed", "call_sid", cc.CallSID, "error", err)
	}
}

// disconnectRecognizer closes the recognizer exactly once; both the drain
// settle in Run and teardown reach for it.
func (s *CallSession) disconnectRecognizer() {
	s.recClose.Do(func() {
		if err := s.rec.Disconnect(); err != nil {
			s.log.Error("recognizer disconnect failed", "call_sid", s.callSIDForLog(), "error", err)
		}
	})
}

// teardownOnce cancels the drain, disconnects the recognizer, and closes
// the transport. Safe on every exit path; runs exactly once.
func (s *CallSession) teardownOnce() {
	s.teardown.Do(func() {
		s.cancel()
		s.disconnectRecognizer()
		_ = s.conn.Close()
	})
}

func (s *CallSession) cancelUtterance(id int64) {
	s.canceledMu.Lock()
	defer s.canceledMu.Unlock()
	if _, ok := s.canceledSet[id]; ok {
		return
	}
	s.canceledSet[id] = struct{}{}
	s.canceledOrder = append(s.canceledOrder, id)
	if len(s.canceledOrder) > maxCanceledUtterances {
		oldest := s.canceledOrder[0]
		s.canceledOrder = s.canceledOrder[1:]
		delete(s.canceledSet, oldest)
	}
}

func (s *CallSession) isCanceled(id int64) bool {
	s.canceledMu.Lock()
	defer s.canceledMu.Unlock()
	_, ok := s.canceledSet[id]
	return ok
}

func (s *CallSession) callSIDForLog() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.callSID
}

func (s *CallSession) streamSIDForWire() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.streamSID
}
