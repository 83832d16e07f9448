package voice

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dtran/mailflow/internal/model"
)

// SessionState is the recording session lifecycle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRequestingPermission
	StateRecording
	StatePaused
	StateStopping
	StateUploading
	StateReady
	StateFailed
	StateCancelled
)

// String returns a short label for the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting-permission"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateUploading:
		return "uploading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Limits bounds a recording session.
type Limits struct {
	// MaxSeconds caps recording duration; reaching it stops the session
	// as if the user finished it.
	MaxSeconds int
	// MinBytes is the smallest assembled clip worth sending. Anything
	// below is discarded as an accidental tap.
	MinBytes int
}

// Session is one recording attempt. Elapsed time advances only through
// Tick, so pausing freezes the clock without bookkeeping.
type Session struct {
	mu        sync.Mutex
	device    Device
	format    string
	limits    Limits
	log       *slog.Logger
	state     SessionState
	stream    Stream
	fragments [][]byte
	elapsed   int
	err       error
	drained   chan struct{}
}

func newSession(device Device, format string, limits Limits, log *slog.Logger) *Session {
	return &Session{
		device:  device,
		format:  format,
		limits:  limits,
		log:     log,
		state:   StateIdle,
		drained: make(chan struct{}),
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure reason when the session is in StateFailed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Elapsed returns whole recorded seconds, excluding paused time.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Format returns the negotiated recording format.
func (s *Session) Format() string {
	return s.format
}

// start requests permission and begins capturing. It is called by the
// pipeline, never directly.
func (s *Session) start(ctx context.Context) error {
	s.setState(StateRequestingPermission)

	if err := s.device.RequestAccess(ctx); err != nil {
		s.fail(ErrPermissionDenied)
		return ErrPermissionDenied
	}

	stream, err := s.device.Record(ctx, s.format)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.stream = stream
	s.state = StateRecording
	s.mu.Unlock()

	go s.drain(stream)
	return nil
}

// drain collects fragments until the stream closes its channel on Stop.
func (s *Session) drain(stream Stream) {
	for chunk := range stream.Chunks() {
		s.mu.Lock()
		s.fragments = append(s.fragments, chunk)
		s.mu.Unlock()
	}
	close(s.drained)
}

// Tick advances the clock by one second while recording. It returns true
// when the duration cap is reached; the caller must then finish the session.
func (s *Session) Tick() (capReached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return false
	}
	s.elapsed++
	return s.elapsed >= s.limits.MaxSeconds
}

// Pause suspends capture. Elapsed time and collected fragments are kept.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return nil
	}
	if err := s.stream.Pause(); err != nil {
		return err
	}
	s.state = StatePaused
	return nil
}

// Resume continues a paused capture.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return nil
	}
	if err := s.stream.Resume(); err != nil {
		return err
	}
	s.state = StateRecording
	return nil
}

// Done ends the capture and assembles the clip. Clips below the minimum
// size return ErrTooShort and the session falls back to idle; nothing is
// uploaded and nothing appears in the conversation.
func (s *Session) Done() (model.AudioClip, error) {
	s.mu.Lock()
	if s.state != StateRecording && s.state != StatePaused {
		s.mu.Unlock()
		return model.AudioClip{}, ErrNoActiveRecording
	}
	s.state = StateStopping
	stream := s.stream
	s.mu.Unlock()

	if err := stream.Stop(); err != nil {
		s.log.Debug("stream stop failed", "err", err)
	}
	<-s.drained

	s.mu.Lock()
	fragments := s.fragments
	elapsed := s.elapsed
	s.mu.Unlock()

	data, err := s.device.Encode(s.format, fragments)
	if err != nil {
		s.fail(err)
		return model.AudioClip{}, err
	}

	if len(data) < s.limits.MinBytes {
		s.setState(StateIdle)
		return model.AudioClip{}, ErrTooShort
	}

	s.setState(StateReady)
	return model.AudioClip{
		Data:        data,
		Format:      s.format,
		DurationSec: elapsed,
	}, nil
}

// Cancel discards the recording. Nothing is assembled or uploaded.
func (s *Session) Cancel() {
	s.mu.Lock()
	stream := s.stream
	active := s.state == StateRecording || s.state == StatePaused
	s.state = StateCancelled
	s.fragments = nil
	s.mu.Unlock()

	if active && stream != nil {
		if err := stream.Stop(); err != nil {
			s.log.Debug("stream stop failed", "err", err)
		}
		<-s.drained
	}
}

// Acknowledge clears a failed session back to idle.
func (s *Session) Acknowledge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFailed {
		s.state = StateIdle
		s.err = nil
	}
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.err = err
	s.mu.Unlock()
}
