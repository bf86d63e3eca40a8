package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// CaptureRate is the rate uplink audio is sent at.
	CaptureRate = 16000
	// PlaybackRate is the rate downlink audio arrives at.
	PlaybackRate = 24000
)

var ErrOddLength = errors.New("pcm16 payload has odd byte length")

// PCMMimeType returns the mime type used to label raw 16-bit PCM at rate.
func PCMMimeType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// EncodePCM16 converts float samples in [-1, 1] to little-endian int16 bytes.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s) * 32768
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// DecodePCM16 converts little-endian int16 bytes back to float samples.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}
	return out, nil
}

// EncodeFrame encodes samples as base64 framed PCM16.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// DecodeFrame reverses EncodeFrame.
func DecodeFrame(frame string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 frame: %w", err)
	}
	return DecodePCM16(raw)
}

// Duration returns how long n samples play at rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
