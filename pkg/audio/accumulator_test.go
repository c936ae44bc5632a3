package audio

import (
	"bytes"
	"testing"
)

func TestAccumulator_TargetSize(t *testing.T) {
	a := NewAccumulator(8000, 300)
	// 8 samples/ms * 2 bytes * 300 ms
	if got, want := a.TargetBytes(), 4800; got != want {
		t.Fatalf("target=%d, want %d", got, want)
	}
}

func TestAccumulator_EmitsExactChunks(t *testing.T) {
	a := NewAccumulator(8000, 100) // target 1600
	target := a.TargetBytes()

	// Feed 3*target bytes in uneven frames; expect exactly 3 chunks.
	total := make([]byte, 3*target)
	for i := range total {
		total[i] = byte(i % 251)
	}
	var chunks [][]byte
	for off := 0; off < len(total); {
		n := 137
		if off+n > len(total) {
			n = len(total) - off
		}
		if chunk := a.Add(total[off : off+n]); chunk != nil {
			chunks = append(chunks, chunk)
			// A frame can complete at most one chunk here since 137 < target.
		}
		off += n
	}
	// Drain anything the final frame completed.
	if chunk := a.Add(nil); chunk != nil {
		chunks = append(chunks, chunk)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks=%d, want 3", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) != target {
			t.Fatalf("chunk[%d] len=%d, want %d", i, len(chunk), target)
		}
		if !bytes.Equal(chunk, total[i*target:(i+1)*target]) {
			t.Fatalf("chunk[%d] content mismatch", i)
		}
	}
	if a.Buffered() != 0 {
		t.Fatalf("buffered=%d, want 0", a.Buffered())
	}
}

func TestAccumulator_FlushReturnsPartial(t *testing.T) {
	a := NewAccumulator(8000, 100)
	partial := []byte{1, 2, 3, 4, 5}
	if chunk := a.Add(partial); chunk != nil {
		t.Fatalf("unexpected chunk from partial add")
	}
	flushed := a.Flush()
	if !bytes.Equal(flushed, partial) {
		t.Fatalf("flush=%v, want %v", flushed, partial)
	}
	if a.Flush() != nil {
		t.Fatalf("second flush should be nil")
	}
}

func TestAccumulator_Clear(t *testing.T) {
	a := NewAccumulator(8000, 100)
	a.Add(make([]byte, 100))
	a.Clear()
	if a.Buffered() != 0 {
		t.Fatalf("buffered=%d after clear", a.Buffered())
	}
	if a.Flush() != nil {
		t.Fatalf("flush after clear should be nil")
	}
}

func TestAccumulator_OversizedFrame(t *testing.T) {
	a := NewAccumulator(8000, 100)
	target := a.TargetBytes()

	// A single frame larger than target emits one chunk and retains the rest.
	frame := make([]byte, target+300)
	chunk := a.Add(frame)
	if len(chunk) != target {
		t.Fatalf("chunk len=%d, want %d", len(chunk), target)
	}
	if a.Buffered() != 300 {
		t.Fatalf("buffered=%d, want 300", a.Buffered())
	}
}
