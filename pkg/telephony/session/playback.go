package session

import "sync"

// playbackState tracks whether synthesized audio is being played to the
// caller. Both the wire-event loop and the transcript drain touch it, so all
// access goes through the mutex. Each playback run gets a fresh utterance id
// so stale frames queued for an interrupted run can be discarded.
type playbackState struct {
	mu        sync.Mutex
	speaking  bool
	stop      bool
	utterance int64
}

// begin marks the start of a playback run and returns its utterance id.
func (p *playbackState) begin() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speaking = true
	p.stop = false
	p.utterance++
	return p.utterance
}

// finish transitions back to idle without requesting a stop. Used on
// end-of-speech mark receipt and on synthesis failure.
func (p *playbackState) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speaking = false
}

// interrupt performs the barge-in transition. Only valid while speaking;
// when idle it reports false and changes nothing.
func (p *playbackState) interrupt() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.speaking {
		return 0, false
	}
	p.speaking = false
	p.stop = true
	return p.utterance, true
}

func (p *playbackState) speakingNow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

func (p *playbackState) stopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop
}
