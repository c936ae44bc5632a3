// Package tts provides text-to-speech synthesis for call playback.
package tts

import (
	"context"
	"errors"
	"sync"
)

// ErrSynthesis wraps provider failures during streaming synthesis.
var ErrSynthesis = errors.New("tts: synthesis failed")

// Synthesizer converts text to a finite stream of PCM chunks.
type Synthesizer interface {
	// SynthesizeStream starts synthesis of text. The returned stream's
	// Chunks channel always terminates; empty text yields a stream with
	// no chunks. Chunks are 16-bit little-endian PCM.
	SynthesizeStream(ctx context.Context, text string) (*Stream, error)
}

// Stream carries synthesized audio chunks. Err is valid once Chunks has
// been drained.
type Stream struct {
	chunks chan []byte
	done   chan struct{}
	once   sync.Once

	errMu sync.Mutex
	err   error
}

func NewStream() *Stream {
	return &Stream{
		chunks: make(chan []byte, 100),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of audio chunks. It is closed when synthesis
// finishes or fails.
func (s *Stream) Chunks() <-chan []byte {
	return s.chunks
}

// Err reports the failure that terminated the stream, if any. Blocks until
// the stream has finished.
func (s *Stream) Err() error {
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close abandons the stream. The producer stops pushing chunks. Idempotent.
func (s *Stream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Push sends a chunk, returning false when the consumer has closed the
// stream. Intended for Synthesizer implementations producing the stream.
func (s *Stream) Push(chunk []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

// Finish records an optional error and terminates the chunk channel.
func (s *Stream) Finish(err error) {
	if err != nil {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
	}
	close(s.chunks)
	s.once.Do(func() { close(s.done) })
}
