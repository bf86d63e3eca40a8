package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rx3lixir/bijoy/internal/device"
)

// fakeOutput is an output context with a hand-driven clock
type fakeOutput struct {
	rate int

	mu     sync.Mutex
	now    time.Duration
	played []*fakeVoice
	closed bool
}

func (o *fakeOutput) SampleRate() int { return o.rate }

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) advance(d time.Duration) {
	o.mu.Lock()
	o.now += d
	o.mu.Unlock()
}

func (o *fakeOutput) Play(samples []float32, at time.Duration) (device.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, device.ErrClosed
	}
	v := &fakeVoice{at: at, n: len(samples), done: make(chan struct{})}
	o.played = append(o.played, v)
	return v, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) voices() []*fakeVoice {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*fakeVoice, len(o.played))
	copy(out, o.played)
	return out
}

func (o *fakeOutput) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

type fakeVoice struct {
	at   time.Duration
	n    int
	once sync.Once
	mu   sync.Mutex
	stop bool
	done chan struct{}
}

func (v *fakeVoice) Stop() {
	v.mu.Lock()
	v.stop = true
	v.mu.Unlock()
	v.finish()
}

func (v *fakeVoice) finish() { v.once.Do(func() { close(v.done) }) }

func (v *fakeVoice) Done() <-chan struct{} { return v.done }

func (v *fakeVoice) stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stop
}

type fakeStream struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) SampleRate() int { return 16000 }
func (s *fakeStream) Frames() <-chan []float32 { return nil }
func (s *fakeStream) Supports(string) bool { return false }
func (s *fakeStream) Record(string) (<-chan []byte, error) { return nil, device.ErrUnsupportedFormat }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeInput struct {
	frames chan []float32
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func (c *fakeInput) Capture(device.Stream, int) (<-chan []float32, error) {
	return c.frames, nil
}

func (c *fakeInput) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.frames)
	})
	return nil
}

func (c *fakeInput) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeHost struct {
	deny   bool
	stream *fakeStream
	input  *fakeInput
	output *fakeOutput
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		stream: &fakeStream{},
		input:  &fakeInput{frames: make(chan []float32)},
		output: &fakeOutput{rate: 24000},
	}
}

func (h *fakeHost) Open(ctx context.Context) (device.Stream, error) {
	if h.deny {
		return nil, &device.PermissionError{Device: "microphone"}
	}
	return h.stream, nil
}

func (h *fakeHost) NewInputContext(rate int) (device.InputContext, error) { return h.input, nil }

func (h *fakeHost) NewOutputContext(rate int) (device.OutputContext, error) { return h.output, nil }

type recvResult struct {
	msg ServerMessage
	err error
}

type fakeConn struct {
	sent     chan ClientMessage
	incoming chan recvResult
	closedCh chan struct{}
	once     sync.Once
}

var errConnClosed = errors.New("use of closed connection")

func newFakeConn() *fakeConn {
	c := &fakeConn{
		sent:     make(chan ClientMessage, 64),
		incoming: make(chan recvResult, 64),
		closedCh: make(chan struct{}),
	}
	c.incoming <- recvResult{msg: ServerMessage{SetupComplete: &struct{}{}}}
	return c
}

func (c *fakeConn) Send(ctx context.Context, msg ClientMessage) error {
	select {
	case <-c.closedCh:
		return errConnClosed
	default:
	}
	select {
	case c.sent <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Receive(ctx context.Context) (ServerMessage, error) {
	select {
	case r := <-c.incoming:
		return r.msg, r.err
	case <-c.closedCh:
		return ServerMessage{}, errConnClosed
	case <-ctx.Done():
		return ServerMessage{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closedCh) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closedCh:
		return true
	default:
		return false
	}
}

type dialerFunc func(ctx context.Context) (Conn, error)

func (f dialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

func connDialer(c Conn) Dialer {
	return dialerFunc(func(context.Context) (Conn, error) { return c, nil })
}
