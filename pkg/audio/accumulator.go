package audio

const bytesPerSample = 2

// Accumulator collects irregular inbound PCM frames and emits chunks of
// exactly the target size. The remainder is retained for the next emission;
// only Flush may return a short chunk.
type Accumulator struct {
	target int
	buf    []byte
}

// NewAccumulator sizes the target for 16-bit mono PCM at the given rate:
// (sampleRate/1000) * bytesPerSample * targetDurationMS.
func NewAccumulator(sampleRate, targetDurationMS int) *Accumulator {
	if sampleRate <= 0 {
		sampleRate = 8000
	}
	if targetDurationMS <= 0 {
		targetDurationMS = 300
	}
	target := (sampleRate / 1000) * bytesPerSample * targetDurationMS
	return &Accumulator{
		target: target,
		buf:    make([]byte, 0, target*2),
	}
}

// TargetBytes reports the fixed emission size.
func (a *Accumulator) TargetBytes() int { return a.target }

// Buffered reports how many bytes are waiting for the next emission.
func (a *Accumulator) Buffered() int { return len(a.buf) }

// Add appends a frame and returns a full chunk when one is available, or nil.
func (a *Accumulator) Add(frame []byte) []byte {
	a.buf = append(a.buf, frame...)
	if len(a.buf) < a.target {
		return nil
	}
	chunk := make([]byte, a.target)
	copy(chunk, a.buf[:a.target])
	n := copy(a.buf, a.buf[a.target:])
	a.buf = a.buf[:n]
	return chunk
}

// Flush returns whatever remains buffered, or nil if empty.
func (a *Accumulator) Flush() []byte {
	if len(a.buf) == 0 {
		return nil
	}
	chunk := make([]byte, len(a.buf))
	copy(chunk, a.buf)
	a.buf = a.buf[:0]
	return chunk
}

// Clear discards all buffered bytes.
func (a *Accumulator) Clear() {
	a.buf = a.buf[:0]
}
