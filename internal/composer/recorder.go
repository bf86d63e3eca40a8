package composer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rx3lixir/bijoy/internal/conversation"
	"github.com/rx3lixir/bijoy/internal/device"
	"github.com/rx3lixir/bijoy/internal/metrics"
	"github.com/rx3lixir/bijoy/pkg/audio"
	"github.com/rx3lixir/bijoy/pkg/logger"
)

type RecorderState string

const (
	StateIdle      RecorderState = "idle"
	StateStarting  RecorderState = "starting"
	StateRecording RecorderState = "recording"
	StateStopping  RecorderState = "stopping"
)

// RecorderStatus is a point-in-time view of a recorder
type RecorderStatus struct {
	ConversationID string        `json:"conversation_id"`
	State          RecorderState `json:"state"`
	ElapsedSeconds int           `json:"elapsed_seconds"`
	MimeType       string        `json:"mime_type,omitempty"`
	Chunks         int           `json:"chunks"`
}

// MicrophoneSource resolves the microphone serving a conversation
type MicrophoneSource func(conversationID string) (device.Microphone, error)

// Recorder captures one voice message at a time for a conversation
type Recorder struct {
	conversationID string
	mics           MicrophoneSource
	composer       *Composer
	tick           time.Duration
	log            *slog.Logger

	mu        sync.Mutex
	state     RecorderState
	discarded bool
	stream    device.Stream
	mimeType  string
	chunks    [][]byte
	elapsed   int
	collected chan struct{}
	stopTick  chan struct{}
}

func newRecorder(conversationID string, mics MicrophoneSource, c *Composer, tick time.Duration, log *slog.Logger) *Recorder {
	return &Recorder{
		conversationID: conversationID,
		mics:           mics,
		composer:       c,
		tick:           tick,
		log:            log.With("conversation_id", conversationID),
		state:          StateIdle,
	}
}

// Start acquires the microphone and begins collecting encoded chunks.
// It returns *device.PermissionError when access is denied and
// ErrAlreadyRecording while another recording is active.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.state = StateStarting
	r.mu.Unlock()

	stream, mimeType, chunks, err := r.open(ctx)
	if err != nil {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()
		metrics.Recordings.WithLabelValues("failed").Inc()
		r.log.Warn("recording failed to start", "error", err)
		return err
	}

	r.mu.Lock()
	if r.discarded {
		r.state = StateIdle
		r.mu.Unlock()
		_ = stream.Close()
		return ErrNotRecording
	}
	r.state = StateRecording
	r.stream = stream
	r.mimeType = mimeType
	r.chunks = nil
	r.elapsed = 0
	r.collected = make(chan struct{})
	r.stopTick = make(chan struct{})
	collected, stopTick := r.collected, r.stopTick
	r.mu.Unlock()

	go r.collect(chunks, collected)
	go r.count(stopTick)

	r.log.Info("recording started", "mime_type", mimeType)
	return nil
}

func (r *Recorder) open(ctx context.Context) (device.Stream, string, <-chan []byte, error) {
	mic, err := r.mics(r.conversationID)
	if err != nil {
		return nil, "", nil, err
	}

	stream, err := mic.Open(ctx)
	if err != nil {
		return nil, "", nil, err
	}

	mimeType := audio.PickFormat(audio.RecordingPreference, stream.Supports)
	chunks, err := stream.Record(mimeType)
	if err != nil {
		_ = stream.Close()
		return nil, "", nil, fmt.Errorf("failed to start encoder %s: %w", mimeType, err)
	}
	return stream, mimeType, chunks, nil
}

func (r *Recorder) collect(chunks <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for c := range chunks {
		if len(c) == 0 {
			continue
		}
		r.mu.Lock()
		r.chunks = append(r.chunks, c)
		r.mu.Unlock()
	}
}

func (r *Recorder) count(stop <-chan struct{}) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			r.elapsed++
			r.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// Stop ends the recording and releases the microphone. With send set and
// at least one captured chunk the audio is appended as one message;
// otherwise everything captured is discarded and the result is nil.
func (r *Recorder) Stop(ctx context.Context, send bool) (*conversation.Message, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.state = StateStopping
	stream, collected, mimeType := r.stream, r.collected, r.mimeType
	close(r.stopTick)
	r.mu.Unlock()

	// closing the stream ends the chunk channel, so the wait is bounded
	// even when ctx is already done
	_ = stream.Close()
	<-collected

	r.mu.Lock()
	chunks := r.chunks
	elapsed := r.elapsed
	r.chunks = nil
	r.elapsed = 0
	r.stream = nil
	r.mimeType = ""
	r.state = StateIdle
	r.mu.Unlock()

	if !send || len(chunks) == 0 {
		metrics.Recordings.WithLabelValues("discarded").Inc()
		r.log.Info("recording discarded", "chunks", len(chunks), "elapsed_seconds", elapsed)
		return nil, nil
	}

	msg, err := r.composer.SendAudio(ctx, r.conversationID, bytes.Join(chunks, nil), mimeType)
	if err != nil {
		metrics.Recordings.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to send recording: %w", err)
	}

	metrics.Recordings.WithLabelValues("sent").Inc()
	r.log.Info("recording sent",
		"message_id", msg.ID,
		"chunks", len(chunks),
		"elapsed_seconds", elapsed)
	return &msg, nil
}

func (r *Recorder) Status() RecorderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RecorderStatus{
		ConversationID: r.conversationID,
		State:          r.state,
		ElapsedSeconds: r.elapsed,
		MimeType:       r.mimeType,
		Chunks:         len(r.chunks),
	}
}

// Recorders keeps one recorder per conversation
type Recorders struct {
	composer *Composer
	mics     MicrophoneSource
	tick     time.Duration
	log      *slog.Logger

	mu        sync.Mutex
	recorders map[string]*Recorder
}

func NewRecorders(c *Composer, mics MicrophoneSource, log *slog.Logger) *Recorders {
	return &Recorders{
		composer:  c,
		mics:      mics,
		tick:      time.Second,
		log:       logger.OrDefault(log),
		recorders: make(map[string]*Recorder),
	}
}

func (rs *Recorders) For(conversationID string) *Recorder {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	r, ok := rs.recorders[conversationID]
	if !ok {
		r = newRecorder(conversationID, rs.mics, rs.composer, rs.tick, rs.log)
		rs.recorders[conversationID] = r
	}
	return r
}

// Lookup returns the recorder of a conversation without creating one
func (rs *Recorders) Lookup(conversationID string) (*Recorder, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.recorders[conversationID]
	return r, ok
}

// Status reports an idle recorder for conversations that never recorded
func (rs *Recorders) Status(conversationID string) RecorderStatus {
	if r, ok := rs.Lookup(conversationID); ok {
		return r.Status()
	}
	return RecorderStatus{ConversationID: conversationID, State: StateIdle}
}

// Len is the number of conversations holding a recorder
func (rs *Recorders) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.recorders)
}

// Discard cancels any recording of the conversation without sending it
func (rs *Recorders) Discard(ctx context.Context, conversationID string) {
	rs.mu.Lock()
	r, ok := rs.recorders[conversationID]
	delete(rs.recorders, conversationID)
	rs.mu.Unlock()

	if ok {
		r.mu.Lock()
		r.discarded = true
		r.mu.Unlock()
		_, _ = r.Stop(ctx, false)
	}
}

// DiscardAll cancels every active recording
func (rs *Recorders) DiscardAll(ctx context.Context) {
	rs.mu.Lock()
	ids := make([]string, 0, len(rs.recorders))
	for id := range rs.recorders {
		ids = append(ids, id)
	}
	rs.mu.Unlock()

	for _, id := range ids {
		rs.Discard(ctx, id)
	}
}
