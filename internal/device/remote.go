package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/bijoy/pkg/audio"
	"github.com/rx3lixir/bijoy/pkg/logger"
)

// Permission is the microphone grant state declared by the peer
type Permission int

const (
	PermissionPrompt Permission = iota
	PermissionGranted
	PermissionDenied
)

type CommandType string

const (
	CmdPermissionRequest CommandType = "permission_request"
	CmdMicOpen           CommandType = "mic_open"
	CmdMicClose          CommandType = "mic_close"
	CmdRecordStart       CommandType = "record_start"
	CmdRecordStop        CommandType = "record_stop"
	CmdOutputOpen        CommandType = "output_open"
	CmdPlay              CommandType = "play"
	CmdStopVoice         CommandType = "stop_voice"
	CmdOutputClose       CommandType = "output_close"
)

// Command is sent to the peer that owns the real hardware
type Command struct {
	Type       CommandType `json:"type"`
	Stream     string      `json:"stream,omitempty"`
	MimeType   string      `json:"mime_type,omitempty"`
	Output     string      `json:"output,omitempty"`
	Voice      string      `json:"voice,omitempty"`
	At         float64     `json:"at,omitempty"`
	SampleRate int         `json:"sample_rate,omitempty"`
	Data       string      `json:"data,omitempty"`
}

type RemoteConfig struct {
	// SampleRate of the frames the peer pushes
	SampleRate int
	// Formats the peer can encode recordings in
	Formats []string
	Log     *slog.Logger
}

// Remote is a Host whose hardware lives on a connected peer. The peer
// pushes microphone frames and encoded chunks in and drains Commands.
type Remote struct {
	rate    int
	formats map[string]bool
	log     *slog.Logger

	commands chan Command
	done     chan struct{}

	mu          sync.Mutex
	permission  Permission
	permChanged chan struct{}
	streams     map[*remoteStream]struct{}
	closed      bool
}

func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	formats := make(map[string]bool, len(cfg.Formats))
	for _, f := range cfg.Formats {
		formats[f] = true
	}
	return &Remote{
		rate:        cfg.SampleRate,
		formats:     formats,
		log:         logger.OrDefault(cfg.Log),
		commands:    make(chan Command, 256),
		done:        make(chan struct{}),
		permChanged: make(chan struct{}),
		streams:     make(map[*remoteStream]struct{}),
	}
}

// Commands is drained by the transport that talks to the peer
func (r *Remote) Commands() <-chan Command {
	return r.commands
}

func (r *Remote) emit(cmd Command) {
	select {
	case r.commands <- cmd:
	case <-r.done:
	}
}

// Done is closed once the peer disconnects
func (r *Remote) Done() <-chan struct{} {
	return r.done
}

// SetPermission records the peer's answer to the microphone prompt
func (r *Remote) SetPermission(p Permission) {
	r.mu.Lock()
	r.permission = p
	close(r.permChanged)
	r.permChanged = make(chan struct{})
	r.mu.Unlock()

	r.log.Debug("microphone permission updated", "permission", p)
}

// Open acquires the peer microphone, prompting when no answer is known yet
func (r *Remote) Open(ctx context.Context) (Stream, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		perm, changed := r.permission, r.permChanged
		r.mu.Unlock()

		switch perm {
		case PermissionDenied:
			return nil, &PermissionError{Device: "microphone"}
		case PermissionGranted:
			return r.openStream(), nil
		}

		r.emit(Command{Type: CmdPermissionRequest})
		select {
		case <-changed:
		case <-r.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, &PermissionError{Device: "microphone", Err: ctx.Err()}
		}
	}
}

func (r *Remote) openStream() *remoteStream {
	s := &remoteStream{
		id:     uuid.NewString(),
		remote: r,
		frames: make(chan []float32, 64),
	}

	r.mu.Lock()
	r.streams[s] = struct{}{}
	r.mu.Unlock()

	r.emit(Command{Type: CmdMicOpen, Stream: s.id, SampleRate: r.rate})
	return s
}

// PushFrame fans a microphone frame out to every open stream. Frames are
// dropped for streams that are not keeping up.
func (r *Remote) PushFrame(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.streams {
		s.pushFrame(samples)
	}
}

// PushChunk delivers an encoded recording chunk to every recording stream
func (r *Remote) PushChunk(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.streams {
		s.pushChunk(data)
	}
}

func (r *Remote) NewInputContext(rate int) (InputContext, error) {
	return NewSoftwareInput(rate), nil
}

func (r *Remote) NewOutputContext(rate int) (OutputContext, error) {
	o := &remoteOutput{
		id:     uuid.NewString(),
		remote: r,
		rate:   rate,
		start:  time.Now(),
		voices: make(map[*remoteVoice]struct{}),
	}
	r.emit(Command{Type: CmdOutputOpen, Output: o.id, SampleRate: rate})
	return o, nil
}

// Close disconnects the peer. Every stream is ended.
func (r *Remote) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	streams := make([]*remoteStream, 0, len(r.streams))
	for s := range r.streams {
		streams = append(streams, s)
	}
	close(r.done)
	r.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
}

type remoteStream struct {
	id     string
	remote *Remote
	frames chan []float32

	// guarded by remote.mu
	chunks chan []byte
	closed bool
}

func (s *remoteStream) SampleRate() int {
	return s.remote.rate
}

func (s *remoteStream) Frames() <-chan []float32 {
	return s.frames
}

func (s *remoteStream) Supports(mimeType string) bool {
	return s.remote.formats[mimeType]
}

func (s *remoteStream) Record(mimeType string) (<-chan []byte, error) {
	if !s.Supports(mimeType) {
		return nil, ErrUnsupportedFormat
	}

	s.remote.mu.Lock()
	if s.closed {
		s.remote.mu.Unlock()
		return nil, ErrClosed
	}
	if s.chunks != nil {
		s.remote.mu.Unlock()
		return nil, ErrAlreadyRecording
	}
	s.chunks = make(chan []byte, 64)
	ch := s.chunks
	s.remote.mu.Unlock()

	s.remote.emit(Command{Type: CmdRecordStart, Stream: s.id, MimeType: mimeType})
	return ch, nil
}

// pushFrame must be called with remote.mu held
func (s *remoteStream) pushFrame(samples []float32) {
	if s.closed {
		return
	}
	select {
	case s.frames <- samples:
	default:
	}
}

// pushChunk must be called with remote.mu held
func (s *remoteStream) pushChunk(data []byte) {
	if s.closed || s.chunks == nil {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case s.chunks <- buf:
	default:
		s.remote.log.Warn("recording chunk dropped, consumer too slow", "stream", s.id)
	}
}

func (s *remoteStream) Close() error {
	r := s.remote
	r.mu.Lock()
	if s.closed {
		r.mu.Unlock()
		return nil
	}
	s.closed = true
	delete(r.streams, s)
	recording := s.chunks != nil
	close(s.frames)
	if recording {
		close(s.chunks)
	}
	r.mu.Unlock()

	if recording {
		r.emit(Command{Type: CmdRecordStop, Stream: s.id})
	}
	r.emit(Command{Type: CmdMicClose, Stream: s.id})
	return nil
}

type remoteOutput struct {
	id     string
	remote *Remote
	rate   int
	start  time.Time

	mu     sync.Mutex
	voices map[*remoteVoice]struct{}
	closed bool
}

func (o *remoteOutput) SampleRate() int {
	return o.rate
}

func (o *remoteOutput) Now() time.Duration {
	return time.Since(o.start)
}

func (o *remoteOutput) Play(samples []float32, at time.Duration) (Voice, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	v := &remoteVoice{id: uuid.NewString(), output: o, done: make(chan struct{})}
	o.voices[v] = struct{}{}

	wait := at - o.Now()
	if wait < 0 {
		wait = 0
	}
	v.timer = time.AfterFunc(wait+audio.Duration(len(samples), o.rate), v.finish)
	o.mu.Unlock()

	o.remote.emit(Command{
		Type:       CmdPlay,
		Output:     o.id,
		Voice:      v.id,
		At:         at.Seconds(),
		SampleRate: o.rate,
		Data:       audio.EncodeFrame(samples),
	})
	return v, nil
}

func (o *remoteOutput) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	voices := make([]*remoteVoice, 0, len(o.voices))
	for v := range o.voices {
		voices = append(voices, v)
	}
	o.mu.Unlock()

	for _, v := range voices {
		v.halt()
	}
	o.remote.emit(Command{Type: CmdOutputClose, Output: o.id})
	return nil
}

type remoteVoice struct {
	id     string
	output *remoteOutput
	timer  *time.Timer
	once   sync.Once
	done   chan struct{}
}

func (v *remoteVoice) finish() {
	v.once.Do(func() {
		v.output.mu.Lock()
		delete(v.output.voices, v)
		v.output.mu.Unlock()
		close(v.done)
	})
}

// halt ends the voice locally without telling the peer
func (v *remoteVoice) halt() {
	v.timer.Stop()
	v.finish()
}

func (v *remoteVoice) Stop() {
	select {
	case <-v.done:
		return
	default:
	}
	v.halt()
	v.output.remote.emit(Command{Type: CmdStopVoice, Output: v.output.id, Voice: v.id})
}

func (v *remoteVoice) Done() <-chan struct{} {
	return v.done
}
