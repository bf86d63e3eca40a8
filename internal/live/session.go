// Package live runs a real-time voice call against a conversational AI
// endpoint: microphone uplink, scheduled playback downlink and interruption.
package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rx3lixir/bijoy/internal/device"
	"github.com/rx3lixir/bijoy/internal/metrics"
	"github.com/rx3lixir/bijoy/pkg/audio"
	"github.com/rx3lixir/bijoy/pkg/logger"
)

const (
	DefaultModel        = "models/gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice        = "Zephyr"
	DefaultFrameSize    = 4096
	DefaultFailureGrace = 3 * time.Second
)

type Config struct {
	Dialer       Dialer
	Host         device.Host
	Model        string
	Voice        string
	FrameSize    int
	FailureGrace time.Duration
	Log          *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.FailureGrace <= 0 {
		c.FailureGrace = DefaultFailureGrace
	}
	c.Log = logger.OrDefault(c.Log)
}

// Session is one call. It owns the microphone stream, both audio contexts
// and the connection until it reaches closed.
type Session struct {
	cfg     Config
	partner string
	log     *slog.Logger

	runCtx    context.Context
	cancelRun context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup

	mu        sync.Mutex
	state     State
	started   bool
	muted     bool
	err       error
	openedAt  time.Time
	endedAt   time.Time
	graceStop *time.Timer

	stream device.Stream
	input  device.InputContext
	output device.OutputContext
	conn   Conn
	sched  *Scheduler
}

func NewSession(cfg Config, partnerName string) *Session {
	cfg.setDefaults()
	runCtx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:       cfg,
		partner:   partnerName,
		log:       cfg.Log.With("partner", partnerName),
		runCtx:    runCtx,
		cancelRun: cancel,
		done:      make(chan struct{}),
		state:     StateConnecting,
	}
}

// Connect acquires the microphone and audio contexts, dials the endpoint
// and negotiates the session. On success the session is open and the
// uplink and downlink run until End or endpoint close. On failure the
// session moves to failed, releases what it acquired, and closes itself
// after the failure grace period.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.state != StateConnecting {
		s.mu.Unlock()
		return ErrClosed
	}
	s.started = true
	s.mu.Unlock()

	metrics.LiveSessionsActive.Inc()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.runCtx, cancel)
	defer stop()

	if err := s.setup(ctx); err != nil {
		if s.closedNow() {
			return ErrClosed
		}
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = StateOpen
	s.openedAt = time.Now()
	stream, input, conn, sched := s.stream, s.input, s.conn, s.sched
	s.mu.Unlock()

	frames, err := input.Capture(stream, s.cfg.FrameSize)
	if err != nil {
		s.fail(fmt.Errorf("failed to start capture: %w", err))
		return err
	}

	s.wg.Add(2)
	go s.uplink(frames, conn)
	go s.downlink(conn, sched)

	s.log.Info("live session open")
	return nil
}

func (s *Session) setup(ctx context.Context) error {
	stream, err := s.cfg.Host.Open(ctx)
	if err != nil {
		return err
	}
	if !s.adopt(func() { s.stream = stream }) {
		_ = stream.Close()
		return ErrClosed
	}

	input, err := s.cfg.Host.NewInputContext(audio.CaptureRate)
	if err != nil {
		return fmt.Errorf("failed to create input context: %w", err)
	}
	if !s.adopt(func() { s.input = input }) {
		_ = input.Close()
		return ErrClosed
	}

	output, err := s.cfg.Host.NewOutputContext(audio.PlaybackRate)
	if err != nil {
		return fmt.Errorf("failed to create output context: %w", err)
	}
	if !s.adopt(func() { s.output = output; s.sched = NewScheduler(output) }) {
		_ = output.Close()
		return ErrClosed
	}

	conn, err := s.cfg.Dialer.Dial(ctx)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	if !s.adopt(func() { s.conn = conn }) {
		_ = conn.Close()
		return ErrClosed
	}

	if err := conn.Send(ctx, newSetup(s.cfg.Model, s.cfg.Voice, s.partner)); err != nil {
		return &TransportError{Op: "setup", Err: err}
	}

	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("endpoint closed during negotiation")
			}
			return &TransportError{Op: "setup", Err: err}
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

// adopt stores a freshly acquired resource unless the session already
// ended, in which case the caller must release it
func (s *Session) adopt(set func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return false
	}
	set()
	return true
}

func (s *Session) closedNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateClosed
}

func (s *Session) uplink(frames <-chan []float32, conn Conn) {
	defer s.wg.Done()

	mimeType := audio.PCMMimeType(audio.CaptureRate)
	for frame := range frames {
		s.mu.Lock()
		muted := s.muted
		s.mu.Unlock()

		if muted {
			metrics.UplinkFrames.WithLabelValues("muted").Inc()
			continue
		}

		if err := conn.Send(s.runCtx, newAudioInput(mimeType, audio.EncodeFrame(frame))); err != nil {
			if s.runCtx.Err() != nil {
				return
			}
			s.fail(&TransportError{Op: "send", Err: err})
			return
		}
		metrics.UplinkFrames.WithLabelValues("sent").Inc()
	}
}

func (s *Session) downlink(conn Conn, sched *Scheduler) {
	defer s.wg.Done()

	// consecutive fragments form one stream until an interruption
	var resampler *audio.Resampler
	resamplerRate := 0

	for {
		msg, err := conn.Receive(s.runCtx)
		if err != nil {
			if s.runCtx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				s.log.Info("endpoint closed the session")
				s.End()
				return
			}
			s.fail(&TransportError{Op: "receive", Err: err})
			return
		}

		if msg.GoAway != nil {
			s.log.Warn("endpoint will close the session soon", "time_left", msg.GoAway.TimeLeft)
		}

		content := msg.ServerContent
		if content == nil {
			continue
		}

		if content.Interrupted {
			stopped := sched.Interrupt()
			resampler = nil
			metrics.Interruptions.Inc()
			s.setState(StateOpen, StateInterrupted)
			s.log.Debug("playback interrupted", "stopped", stopped)
		}

		for _, blob := range content.audioParts() {
			samples, err := audio.DecodeFrame(blob.Data)
			if err != nil {
				s.log.Warn("dropping undecodable audio fragment", "error", err)
				continue
			}
			if rate := blobRate(blob.MimeType, audio.PlaybackRate); rate != audio.PlaybackRate {
				if resampler == nil || resamplerRate != rate {
					resampler, resamplerRate = audio.NewResampler(rate, audio.PlaybackRate), rate
				}
				samples = resampler.Push(samples)
				if len(samples) == 0 {
					continue
				}
			}
			if _, err := sched.Schedule(samples); err != nil {
				if s.runCtx.Err() != nil {
					return
				}
				s.log.Warn("failed to schedule playback", "error", err)
				continue
			}
			s.setState(StateInterrupted, StateOpen)
		}
	}
}

// setState moves from one state to another only when currently in from
func (s *Session) setState(from, to State) {
	s.mu.Lock()
	if s.state == from {
		s.state = to
	}
	s.mu.Unlock()
}

// fail records err, releases every resource and schedules the close
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.err = err
	s.graceStop = time.AfterFunc(s.cfg.FailureGrace, s.finish)
	s.mu.Unlock()

	s.log.Error("live session failed", "error", err)
	s.release()
}

// End hangs up. It is safe to call in any state and more than once.
func (s *Session) End() {
	s.finish()
}

func (s *Session) finish() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	failed := s.state == StateFailed
	s.state = StateClosed
	s.endedAt = time.Now()
	if s.graceStop != nil {
		s.graceStop.Stop()
	}
	started := s.started
	s.mu.Unlock()

	s.release()

	if started {
		metrics.LiveSessionsActive.Dec()
		result := "ended"
		if failed {
			result = "failed"
		}
		metrics.LiveSessionsEnded.WithLabelValues(result).Inc()
	}

	s.log.Info("live session closed", "failed", failed)
	close(s.done)
}

// release cancels the pumps and closes whatever has been acquired
func (s *Session) release() {
	s.cancelRun()

	s.mu.Lock()
	stream, input, output, conn, sched := s.stream, s.input, s.output, s.conn, s.sched
	s.stream, s.input, s.output, s.conn, s.sched = nil, nil, nil, nil, nil
	s.mu.Unlock()

	if sched != nil {
		sched.Interrupt()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.log.Debug("connection close", "error", err)
		}
	}
	if input != nil {
		_ = input.Close()
	}
	if stream != nil {
		_ = stream.Close()
	}
	if output != nil {
		_ = output.Close()
	}
}

// ToggleMute flips local muting and returns the new value. Muted frames
// are still captured but never sent.
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = !s.muted
	return s.muted
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Partner: s.partner,
		State:   s.state,
		Muted:   s.muted,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	if !s.openedAt.IsZero() {
		end := time.Now()
		if !s.endedAt.IsZero() {
			end = s.endedAt
		}
		st.Elapsed = end.Sub(s.openedAt)
		st.ElapsedSeconds = int(st.Elapsed / time.Second)
	}
	return st
}

// Err is the failure that ended the session, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session reaches closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the pumps have exited. Only meaningful after Done.
func (s *Session) Wait() {
	s.wg.Wait()
}
