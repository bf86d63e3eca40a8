// Package device describes the audio hardware the client talks to: a
// microphone that yields PCM frames and encoded recordings, and input and
// output audio contexts running at a fixed sample rate.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrClosed            = errors.New("device closed")
	ErrUnsupportedFormat = errors.New("recording format not supported")
	ErrAlreadyRecording  = errors.New("stream is already recording")
	ErrNoDevice          = errors.New("no audio device connected")
)

// PermissionError reports that access to a device was denied
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s permission denied: %v", e.Device, e.Err)
	}
	return e.Device + " permission denied"
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

type Microphone interface {
	// Open acquires the microphone. It returns *PermissionError on denial.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an acquired microphone. Closing it releases the device and
// closes every channel it handed out.
type Stream interface {
	SampleRate() int
	Frames() <-chan []float32
	Supports(mimeType string) bool
	// Record starts an encoder on the stream. Chunks arrive until the
	// stream is closed.
	Record(mimeType string) (<-chan []byte, error)
	Close() error
}

type InputContext interface {
	// Capture delivers frames of exactly frameSize samples at the context
	// rate until the stream ends or the context is closed.
	Capture(stream Stream, frameSize int) (<-chan []float32, error)
	Close() error
}

type OutputContext interface {
	SampleRate() int
	// Now is the playback clock, starting at zero when the context opens
	Now() time.Duration
	// Play schedules samples to start at the given clock position
	Play(samples []float32, at time.Duration) (Voice, error)
	Close() error
}

// Voice is one scheduled buffer
type Voice interface {
	Stop()
	Done() <-chan struct{}
}

type Host interface {
	Microphone
	NewInputContext(rate int) (InputContext, error)
	NewOutputContext(rate int) (OutputContext, error)
}
