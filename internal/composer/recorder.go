package composer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
)

// Recorder opens an audio capture session.
type Recorder interface {
	Start(ctx context.Context) (Recording, error)
}

// Recording is a capture in progress. Exactly one of Stop or Discard is called.
type Recording interface {
	// Stop ends the capture and returns the audio and its measured duration.
	Stop() ([]byte, time.Duration, error)
	// Discard ends the capture and releases its resources.
	Discard()
}

// VoiceContentType is the MIME type of recorded voice notes.
const VoiceContentType = "audio/webm"

// StartRecording begins a voice note for chatID. Only one capture runs at a time.
func (c *Composer) StartRecording(ctx context.Context, chatID string) error {
	if c.d.Recorder == nil {
		return fmt.Errorf("recorder: %w", errs.ErrNotConfigured)
	}
	if _, ok := c.st.State().Chat(chatID); !ok {
		return fmt.Errorf("chat %s: %w", chatID, errs.ErrNotFound)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil {
		return errors.New("recording already in progress")
	}
	rec, err := c.d.Recorder.Start(ctx)
	if err != nil {
		c.notify("Microphone unavailable")
		return fmt.Errorf("recorder: %w", err)
	}
	c.rec, c.recChat = rec, chatID
	return nil
}

// ActiveRecording reports whether a capture is running and for which chat.
func (c *Composer) ActiveRecording() (chatID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recChat, c.rec != nil
}

// StopRecording ends the capture. With send it uploads the audio and sends
// it as a voice message; otherwise the capture is discarded and nil is returned.
func (c *Composer) StopRecording(ctx context.Context, send bool) (*model.Message, error) {
	c.mu.Lock()
	rec, chatID := c.rec, c.recChat
	c.rec, c.recChat = nil, ""
	c.mu.Unlock()
	if rec == nil {
		return nil, errors.New("no recording in progress")
	}
	if !send {
		rec.Discard()
		return nil, nil
	}

	data, dur, err := rec.Stop()
	if err != nil {
		c.log.Warn("composer - recording - stop failed", zap.Error(err))
		c.notify("Recording failed")
		return nil, fmt.Errorf("recorder: %w", err)
	}
	m, err := c.SendAttachment(ctx, chatID, Attachment{
		Type:        model.MessageAudio,
		Name:        "voice-" + c.st.NewID() + ".webm",
		ContentType: VoiceContentType,
		Data:        data,
		Duration:    dur,
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// StreamRecorder captures audio from a stream opened per recording, such as
// a microphone device or an encoder pipe.
type StreamRecorder struct {
	Open func(ctx context.Context) (io.ReadCloser, error)
	Now  func() time.Time
}

// Start opens the stream and copies it into memory until stopped.
func (r StreamRecorder) Start(ctx context.Context) (Recording, error) {
	if r.Open == nil {
		return nil, fmt.Errorf("audio source: %w", errs.ErrNotConfigured)
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}
	src, err := r.Open(ctx)
	if err != nil {
		return nil, err
	}
	s := &streamRecording{src: src, now: now, started: now(), done: make(chan struct{})}
	go s.capture()
	return s, nil
}

type streamRecording struct {
	src     io.ReadCloser
	now     func() time.Time
	started time.Time

	mu      sync.Mutex
	buf     bytes.Buffer
	err     error
	stopped bool
	done    chan struct{}
	once    sync.Once
}

func (s *streamRecording) capture() {
	defer close(s.done)
	chunk := make([]byte, 4096)
	for {
		n, err := s.src.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(chunk[:n])
			s.mu.Unlock()
		}
		if err != nil {
			s.mu.Lock()
			// reads fail once the source is closed by Stop or Discard
			if !errors.Is(err, io.EOF) && !s.stopped {
				s.err = err
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *streamRecording) finish() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		_ = s.src.Close()
	})
}

func (s *streamRecording) Stop() ([]byte, time.Duration, error) {
	dur := s.now().Sub(s.started)
	s.finish()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, 0, s.err
	}
	if s.buf.Len() == 0 {
		return nil, 0, errors.New("empty recording")
	}
	return bytes.Clone(s.buf.Bytes()), dur, nil
}

func (s *streamRecording) Discard() {
	s.finish()
	<-s.done
	s.mu.Lock()
	s.buf.Reset()
	s.mu.Unlock()
}
