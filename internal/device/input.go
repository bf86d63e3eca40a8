package device

import (
	"sync"

	"github.com/rx3lixir/bijoy/pkg/audio"
)

// SoftwareInput converts stream frames to its own rate and re-chunks them
// into fixed-size frames
type SoftwareInput struct {
	rate int

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

func NewSoftwareInput(rate int) *SoftwareInput {
	return &SoftwareInput{rate: rate, stop: make(chan struct{})}
}

func (c *SoftwareInput) SampleRate() int {
	return c.rate
}

func (c *SoftwareInput) Capture(stream Stream, frameSize int) (<-chan []float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	out := make(chan []float32, 16)
	framer := audio.NewFramer(frameSize)
	resampler := audio.NewResampler(stream.SampleRate(), c.rate)
	in := stream.Frames()

	go func() {
		defer close(out)
		for {
			select {
			case <-c.stop:
				return
			case samples, ok := <-in:
				if !ok {
					return
				}
				for _, frame := range framer.Push(resampler.Push(samples)) {
					select {
					case out <- frame:
					case <-c.stop:
						return
					}
				}
			}
		}
	}()

	return out, nil
}

func (c *SoftwareInput) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stop)
	return nil
}
