package live

import (
	"sync"
	"time"

	"github.com/rx3lixir/bijoy/internal/device"
	"github.com/rx3lixir/bijoy/pkg/audio"
)

// Scheduler queues downlink buffers back to back on an output context.
// Each buffer starts at max(cursor, now) and pushes the cursor forward by
// its duration.
type Scheduler struct {
	out device.OutputContext

	mu     sync.Mutex
	cursor time.Duration
	voices []device.Voice
}

func NewScheduler(out device.OutputContext) *Scheduler {
	return &Scheduler{out: out}
}

// Schedule plays samples after everything already queued and returns the
// start position on the output clock
func (s *Scheduler) Schedule(samples []float32) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.cursor, s.out.Now())
	v, err := s.out.Play(samples, start)
	if err != nil {
		return 0, err
	}
	s.cursor = start + audio.Duration(len(samples), s.out.SampleRate())

	s.prune()
	s.voices = append(s.voices, v)
	return start, nil
}

// prune drops voices that finished playing. Must hold s.mu.
func (s *Scheduler) prune() {
	live := s.voices[:0]
	for _, v := range s.voices {
		select {
		case <-v.Done():
		default:
			live = append(live, v)
		}
	}
	clear(s.voices[len(live):])
	s.voices = live
}

// Interrupt stops every scheduled buffer, playing or not, and resets the
// cursor to now. It returns how many buffers were stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune()
	n := len(s.voices)
	for _, v := range s.voices {
		v.Stop()
	}
	clear(s.voices)
	s.voices = s.voices[:0]
	s.cursor = s.out.Now()
	return n
}

func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Pending counts buffers that have not finished playing
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	return len(s.voices)
}
