package session

import (
	"context"
	"testing"
	"time"
)

func (c *fakeConn) rawFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func startWriter(conn *fakeConn, priority, normal chan outboundFrame, isCanceled func(int64) bool) (cancel func(), done chan error) {
	ctx, stop := context.WithCancel(context.Background())
	w := outboundWriter{
		ws:         conn,
		ctx:        ctx,
		priority:   priority,
		normal:     normal,
		ping:       time.Hour,
		timeout:    time.Second,
		isCanceled: isCanceled,
	}
	done = make(chan error, 1)
	go func() { done <- w.Run() }()
	return stop, done
}

func TestWriterPriorityBeforeQueuedNormal(t *testing.T) {
	conn := newFakeConn()
	priority := make(chan outboundFrame, 8)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{payload: []byte(`{"event":"media"}`), isMedia: true}
	priority <- outboundFrame{payload: []byte(`{"event":"clear"}`)}

	cancel, done := startWriter(conn, priority, normal, nil)
	defer cancel()

	waitFor(t, "both frames written", func() bool { return len(conn.rawFrames()) == 2 })
	frames := conn.rawFrames()
	if string(frames[0]) != `{"event":"clear"}` {
		t.Fatalf("first frame = %s, want the clear frame", frames[0])
	}
	if string(frames[1]) != `{"event":"media"}` {
		t.Fatalf("second frame = %s, want the media frame", frames[1])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not exit on cancel")
	}
}

func TestWriterSkipsCanceledMedia(t *testing.T) {
	conn := newFakeConn()
	priority := make(chan outboundFrame, 8)
	normal := make(chan outboundFrame, 8)

	canceled := func(id int64) bool { return id == 7 }
	cancel, done := startWriter(conn, priority, normal, canceled)
	defer cancel()

	normal <- outboundFrame{utterance: 7, isMedia: true, payload: []byte(`{"event":"media","n":1}`)}
	normal <- outboundFrame{utterance: 8, isMedia: true, payload: []byte(`{"event":"media","n":2}`)}
	// Marks are never filtered, even inside a canceled utterance.
	normal <- outboundFrame{utterance: 7, payload: []byte(`{"event":"mark"}`)}

	waitFor(t, "surviving frames written", func() bool { return len(conn.rawFrames()) == 2 })
	frames := conn.rawFrames()
	if string(frames[0]) != `{"event":"media","n":2}` {
		t.Fatalf("first frame = %s, want the live media frame", frames[0])
	}
	if string(frames[1]) != `{"event":"mark"}` {
		t.Fatalf("second frame = %s, want the mark frame", frames[1])
	}

	cancel()
	<-done
}

func TestWriterExitsWhenChannelsClose(t *testing.T) {
	conn := newFakeConn()
	priority := make(chan outboundFrame)
	normal := make(chan outboundFrame)
	cancel, done := startWriter(conn, priority, normal, nil)
	defer cancel()

	close(priority)
	close(normal)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not exit after channels closed")
	}
}
