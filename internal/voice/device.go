// Package voice drives audio capture: permission, recording with pause and
// resume, container assembly, and the optimistic upload of finished clips.
package voice

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied means the capture device refused access.
	ErrPermissionDenied = errors.New("voice: capture permission denied")
	// ErrTooShort means the assembled clip is below the minimum size and
	// was discarded without contacting the server.
	ErrTooShort = errors.New("voice: recording too short")
	// ErrEncodingUnsupported means no configured format is supported by
	// the capture device.
	ErrEncodingUnsupported = errors.New("voice: no supported recording format")
	// ErrUploadFailed means the clip upload failed and the optimistic
	// message was rolled back.
	ErrUploadFailed = errors.New("voice: upload failed")
	// ErrNoActiveRecording means a finish or pause was requested with no
	// recording in progress.
	ErrNoActiveRecording = errors.New("voice: no active recording")
)

// Device is a capture source. Implementations front real hardware or a test
// double; the session never touches hardware directly.
type Device interface {
	// RequestAccess asks for capture permission. A denial is reported as
	// ErrPermissionDenied.
	RequestAccess(ctx context.Context) error

	// Supports reports whether the device can record in the given format.
	Supports(format string) bool

	// Record starts capturing in the given format.
	Record(ctx context.Context, format string) (Stream, error)

	// Encode assembles the captured fragments into a complete container
	// of the given format.
	Encode(format string, fragments [][]byte) ([]byte, error)
}

// Stream is one live capture. Chunks delivers raw fragments until Stop.
type Stream interface {
	// Chunks delivers capture fragments. The channel closes after Stop.
	Chunks() <-chan []byte

	// Pause suspends capture without ending the stream.
	Pause() error

	// Resume continues a paused capture.
	Resume() error

	// Stop ends the capture and closes the chunk channel.
	Stop() error
}
