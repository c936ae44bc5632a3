// Package stt provides speech-to-text recognizers for live call audio.
package stt

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned by SendAudio when Connect has not
	// succeeded or the recognizer has been disconnected.
	ErrNotConnected = errors.New("stt: not connected")

	// ErrConnect wraps failures to establish the provider connection.
	ErrConnect = errors.New("stt: connect failed")
)

// TranscriptEvent is a single recognition result. Partial events carry the
// best hypothesis so far; final events terminate an utterance.
type TranscriptEvent struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Language   string
}

// Recognizer is a speech-to-text session for one call. Implementations must
// make SendAudio safe to call concurrently with Transcripts consumption, and
// must close the Transcripts channel after Disconnect.
type Recognizer interface {
	// Connect establishes the provider session.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Idempotent.
	Disconnect() error

	// SendAudio submits a chunk of 16-bit little-endian PCM. Returns
	// ErrNotConnected when no session is established.
	SendAudio(pcm []byte) error

	// Transcripts yields recognition results until the session ends.
	Transcripts() <-chan TranscriptEvent
}
