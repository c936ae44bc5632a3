package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestMuLawRoundTrip(t *testing.T) {
	c := NewCodec(8000, 1)

	// A mu-law byte decodes to a sample that re-encodes to the same byte.
	raw := make([]byte, 256)
	for i := range raw {
		raw[i] = byte(i)
	}
	pcm, err := c.DecodeMuLaw(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("DecodeMuLaw: %v", err)
	}
	if len(pcm) != 512 {
		t.Fatalf("pcm len=%d, want 512", len(pcm))
	}
	encoded, err := c.EncodeMuLaw(pcm)
	if err != nil {
		t.Fatalf("EncodeMuLaw: %v", err)
	}
	back, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	for i := range raw {
		// 0x7F and 0xFF both represent zero; re-encoding picks the canonical one.
		if muLawToPCM[raw[i]] == 0 {
			continue
		}
		if back[i] != raw[i] {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x", i, back[i], raw[i])
		}
	}
}

func TestDecodeMuLaw_Silence(t *testing.T) {
	c := NewCodec(8000, 1)
	// 0xFF is mu-law silence.
	pcm, err := c.DecodeMuLaw(base64.StdEncoding.EncodeToString([]byte{0xFF, 0xFF}))
	if err != nil {
		t.Fatalf("DecodeMuLaw: %v", err)
	}
	for i := 0; i < len(pcm); i += 2 {
		if s := int16(binary.LittleEndian.Uint16(pcm[i:])); s != 0 {
			t.Fatalf("sample=%d, want 0", s)
		}
	}
}

func TestDecodeMuLaw_InvalidBase64(t *testing.T) {
	c := NewCodec(8000, 1)
	_, err := c.DecodeMuLaw("not-base64!!!")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err=%v, want ErrDecode", err)
	}
}

func TestEncodeMuLaw_OddLength(t *testing.T) {
	c := NewCodec(8000, 1)
	_, err := c.EncodeMuLaw([]byte{0x01})
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("err=%v, want ErrEncode", err)
	}
}

func TestResample_Identity(t *testing.T) {
	c := NewCodec(8000, 1)
	pcm := []byte{1, 2, 3, 4}
	out, err := c.Resample(pcm, 8000, 8000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if &out[0] != &pcm[0] {
		t.Fatalf("identity resample should return input unchanged")
	}
}

func TestResample_Doubles(t *testing.T) {
	c := NewCodec(8000, 1)
	pcm := make([]byte, 160*2)
	out, err := c.Resample(pcm, 8000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != 160*2*2 {
		t.Fatalf("out len=%d, want %d", len(out), 160*4)
	}
}

func TestResample_BadRates(t *testing.T) {
	c := NewCodec(8000, 1)
	if _, err := c.Resample([]byte{0, 0}, 0, 8000); !errors.Is(err, ErrResample) {
		t.Fatalf("err=%v, want ErrResample", err)
	}
	if _, err := c.Resample([]byte{0, 0}, 8000, -1); !errors.Is(err, ErrResample) {
		t.Fatalf("err=%v, want ErrResample", err)
	}
}

func TestDurationMS(t *testing.T) {
	c := NewCodec(8000, 1)
	// 16000 bytes of 16-bit mono at 8 kHz is one second.
	got := c.DurationMS(make([]byte, 16000))
	if math.Abs(got-1000) > 50 {
		t.Fatalf("duration=%v ms, want ~1000", got)
	}
}

func TestToWAV_Header(t *testing.T) {
	c := NewCodec(8000, 1)
	pcm := make([]byte, 320)
	wav := c.ToWAV(pcm, 0)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav len=%d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF header: %q %q", wav[0:4], wav[8:12])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 8000 {
		t.Fatalf("rate=%d, want 8000", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); int(size) != len(pcm) {
		t.Fatalf("data size=%d, want %d", size, len(pcm))
	}
}
