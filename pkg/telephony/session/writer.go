package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the slice of *websocket.Conn the session uses, narrowed so tests
// can substitute a fake.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	Close() error
}

type outboundFrame struct {
	// media frames carry the utterance id of the playback run that queued
	// them; control frames leave it zero.
	utterance int64
	isMedia   bool
	payload   []byte
}

// outboundWriter owns all writes to the transport. Clear frames arrive on
// the priority channel and preempt queued media so a barge-in reaches the
// provider before any further audio.
type outboundWriter struct {
	ws         wsConn
	ctx        context.Context
	priority   <-chan outboundFrame
	normal     <-chan outboundFrame
	ping       time.Duration
	timeout    time.Duration
	isCanceled func(int64) bool
}

func (w *outboundWriter) Run() error {
	ping := w.ping
	if ping <= 0 {
		ping = 20 * time.Second
	}
	timeout := w.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(ping)
	defer pingTicker.Stop()

	var pendingNormal *outboundFrame

	for {
		select {
		case <-w.ctx.Done():
			w.flushPriorityOnShutdown(timeout)
			_ = w.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(timeout))
			_ = w.ws.Close()
			return nil
		default:
		}

		// Hard priority: anything queued goes out before normal frames.
		select {
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.writeFrame(frame, timeout); err != nil {
				return err
			}
			continue
		default:
		}

		// Allow a newly-queued priority frame to preempt a normal frame
		// we already picked up.
		if pendingNormal != nil {
			select {
			case frame, ok := <-w.priority:
				if !ok {
					w.priority = nil
					continue
				}
				if err := w.writeFrame(frame, timeout); err != nil {
					return err
				}
				continue
			default:
			}
			if err := w.writeFrame(*pendingNormal, timeout); err != nil {
				return err
			}
			pendingNormal = nil
			continue
		}

		if w.priority == nil && w.normal == nil {
			return nil
		}

		select {
		case <-w.ctx.Done():
			continue
		case <-pingTicker.C:
			deadline := time.Now().Add(timeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.writeFrame(frame, timeout); err != nil {
				return err
			}
		case frame, ok := <-w.normal:
			if !ok {
				w.normal = nil
				continue
			}
			pendingNormal = &frame
		}
	}
}

// flushPriorityOnShutdown drains a handful of already-queued priority frames
// so a final clear still reaches the provider.
func (w *outboundWriter) flushPriorityOnShutdown(timeout time.Duration) {
	if w.priority == nil {
		return
	}
	for i := 0; i < 8; i++ {
		select {
		case frame, ok := <-w.priority:
			if !ok {
				return
			}
			_ = w.writeFrame(frame, timeout)
		default:
			return
		}
	}
}

func (w *outboundWriter) writeFrame(frame outboundFrame, timeout time.Duration) error {
	if frame.isMedia && w.isCanceled != nil && w.isCanceled(frame.utterance) {
		return nil
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, frame.payload)
}
