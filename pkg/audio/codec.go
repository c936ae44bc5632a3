// Package audio provides stateless codec operations for telephony audio
// (G.711 mu-law at 8 kHz mono) and a fixed-size accumulator that turns
// irregular network frames into uniform recognition chunks.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrDecode   = errors.New("audio: decode failed")
	ErrEncode   = errors.New("audio: encode failed")
	ErrResample = errors.New("audio: resample failed")
)

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// muLawToPCM maps every mu-law byte to its 16-bit linear sample.
var muLawToPCM [256]int16

func init() {
	for i := 0; i < 256; i++ {
		u := ^uint8(i)
		sign := u & 0x80
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0F
		sample := (int32(mantissa)<<3 + muLawBias) << exponent
		sample -= muLawBias
		if sign != 0 {
			sample = -sample
		}
		muLawToPCM[i] = int16(sample)
	}
}

// Codec performs stateless conversions between the companded wire format and
// 16-bit linear PCM. One instance per call; it holds only the negotiated shape.
type Codec struct {
	SampleRate int
	Channels   int
}

func NewCodec(sampleRate, channels int) *Codec {
	if sampleRate <= 0 {
		sampleRate = 8000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Codec{SampleRate: sampleRate, Channels: channels}
}

// DecodeMuLaw converts a base64 mu-law wire payload to 16-bit little-endian
// linear PCM.
func (c *Codec) DecodeMuLaw(payloadB64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %v", ErrDecode, err)
	}
	pcm := make([]byte, len(raw)*2)
	for i, b := range raw {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(muLawToPCM[b]))
	}
	return pcm, nil
}

// EncodeMuLaw converts 16-bit little-endian linear PCM to a base64 mu-law
// wire payload.
func (c *Codec) EncodeMuLaw(pcm []byte) (string, error) {
	if len(pcm)%2 != 0 {
		return "", fmt.Errorf("%w: pcm length %d is not 16-bit aligned", ErrEncode, len(pcm))
	}
	out := make([]byte, len(pcm)/2)
	for i := range out {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = pcmToMuLaw(sample)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

func pcmToMuLaw(sample int16) byte {
	sign := byte(0)
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// Resample converts 16-bit mono PCM between sample rates by linear
// interpolation. Identity when the rates are equal.
func (c *Codec) Resample(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("%w: unsupported rate pair %d -> %d", ErrResample, fromRate, toRate)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: pcm length %d is not 16-bit aligned", ErrResample, len(pcm))
	}
	if fromRate == toRate {
		return pcm, nil
	}

	inSamples := len(pcm) / 2
	if inSamples == 0 {
		return []byte{}, nil
	}
	outSamples := inSamples * toRate / fromRate
	out := make([]byte, outSamples*2)
	for i := 0; i < outSamples; i++ {
		// Position in the source signal, fixed-point.
		pos := int64(i) * int64(fromRate) * 256 / int64(toRate)
		idx := int(pos / 256)
		frac := int32(pos % 256)
		s0 := int32(int16(binary.LittleEndian.Uint16(pcm[idx*2:])))
		s1 := s0
		if idx+1 < inSamples {
			s1 = int32(int16(binary.LittleEndian.Uint16(pcm[(idx+1)*2:])))
		}
		sample := s0 + (s1-s0)*frac/256
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sample)))
	}
	return out, nil
}

// ToWAV wraps raw 16-bit PCM with a minimal RIFF header for providers that
// require file-shaped input.
func (c *Codec) ToWAV(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = c.SampleRate
	}
	channels := c.Channels
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	out := make([]byte, 0, 44+len(pcm))
	out = append(out, 'R', 'I', 'F', 'F')
	out = binary.LittleEndian.AppendUint32(out, uint32(36+len(pcm)))
	out = append(out, 'W', 'A', 'V', 'E')
	out = append(out, 'f', 'm', 't', ' ')
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, 1) // PCM
	out = binary.LittleEndian.AppendUint16(out, uint16(channels))
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate))
	out = binary.LittleEndian.AppendUint32(out, uint32(byteRate))
	out = binary.LittleEndian.AppendUint16(out, uint16(blockAlign))
	out = binary.LittleEndian.AppendUint16(out, 16) // bits per sample
	out = append(out, 'd', 'a', 't', 'a')
	out = binary.LittleEndian.AppendUint32(out, uint32(len(pcm)))
	out = append(out, pcm...)
	return out
}

// DurationMS reports the playback duration of raw 16-bit PCM in milliseconds.
func (c *Codec) DurationMS(pcm []byte) float64 {
	samples := len(pcm) / (2 * c.Channels)
	return float64(samples) / float64(c.SampleRate) * 1000
}
