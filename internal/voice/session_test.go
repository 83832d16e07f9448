package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtran/mailflow/internal/conversation"
	"github.com/dtran/mailflow/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStream feeds pre-baked chunks and closes its channel on Stop.
type fakeStream struct {
	chunks  chan []byte
	stopped bool
	paused  bool
}

func newFakeStream(chunks ...[]byte) *fakeStream {
	ch := make(chan []byte, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	return &fakeStream{chunks: ch}
}

func (f *fakeStream) Chunks() <-chan []byte { return f.chunks }
func (f *fakeStream) Pause() error          { f.paused = true; return nil }
func (f *fakeStream) Resume() error         { f.paused = false; return nil }
func (f *fakeStream) Stop() error {
	if !f.stopped {
		f.stopped = true
		close(f.chunks)
	}
	return nil
}

type fakeDevice struct {
	denyAccess bool
	formats    map[string]bool
	stream     *fakeStream
	encodeErr  error
}

func (f *fakeDevice) RequestAccess(ctx context.Context) error {
	if f.denyAccess {
		return errors.New("denied")
	}
	return nil
}

func (f *fakeDevice) Supports(format string) bool { return f.formats[format] }

func (f *fakeDevice) Record(ctx context.Context, format string) (Stream, error) {
	return f.stream, nil
}

func (f *fakeDevice) Encode(format string, fragments [][]byte) ([]byte, error) {
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	var out []byte
	for _, frag := range fragments {
		out = append(out, frag...)
	}
	return out, nil
}

func wavDevice(stream *fakeStream) *fakeDevice {
	return &fakeDevice{formats: map[string]bool{"audio/wav": true}, stream: stream}
}

func testLimits() Limits { return Limits{MaxSeconds: 300, MinBytes: 4} }

func TestSessionRecordAndDone(t *testing.T) {
	stream := newFakeStream([]byte{1, 2, 3}, []byte{4, 5, 6})
	dev := wavDevice(stream)
	sess := newSession(dev, "audio/wav", testLimits(), discardLogger())

	require.NoError(t, sess.start(context.Background()))
	assert.Equal(t, StateRecording, sess.State())

	sess.Tick()
	sess.Tick()
	assert.Equal(t, 2, sess.Elapsed())

	clip, err := sess.Done()
	require.NoError(t, err)
	assert.Equal(t, StateReady, sess.State())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, clip.Data)
	assert.Equal(t, "audio/wav", clip.Format)
	assert.Equal(t, 2, clip.DurationSec)
}

func TestSessionPermissionDenied(t *testing.T) {
	dev := &fakeDevice{denyAccess: true, formats: map[string]bool{"audio/wav": true}}
	sess := newSession(dev, "audio/wav", testLimits(), discardLogger())

	err := sess.start(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, StateFailed, sess.State())
	assert.ErrorIs(t, sess.Err(), ErrPermissionDenied)

	sess.Acknowledge()
	assert.Equal(t, StateIdle, sess.State())
	assert.NoError(t, sess.Err())
}

func TestSessionTooShortFallsBackToIdle(t *testing.T) {
	stream := newFakeStream([]byte{1})
	dev := wavDevice(stream)
	sess := newSession(dev, "audio/wav", testLimits(), discardLogger())

	require.NoError(t, sess.start(context.Background()))
	_, err := sess.Done()
	require.ErrorIs(t, err, ErrTooShort)
	assert.Equal(t, StateIdle, sess.State())
}

func TestSessionPauseFreezesClock(t *testing.T) {
	stream := newFakeStream()
	dev := wavDevice(stream)
	sess := newSession(dev, "audio/wav", testLimits(), discardLogger())

	require.NoError(t, sess.start(context.Background()))
	sess.Tick()
	require.NoError(t, sess.Pause())
	assert.Equal(t, StatePaused, sess.State())
	assert.True(t, stream.paused)

	// Ticks while paused do not advance the clock.
	sess.Tick()
	sess.Tick()
	assert.Equal(t, 1, sess.Elapsed())

	require.NoError(t, sess.Resume())
	sess.Tick()
	assert.Equal(t, 2, sess.Elapsed())
}

func TestSessionCapReached(t *testing.T) {
	stream := newFakeStream([]byte{1, 2, 3, 4})
	dev := wavDevice(stream)
	sess := newSession(dev, "audio/wav", Limits{MaxSeconds: 2, MinBytes: 1}, discardLogger())

	require.NoError(t, sess.start(context.Background()))
	assert.False(t, sess.Tick())
	assert.True(t, sess.Tick(), "reaching the cap tells the caller to finish")
}

func TestSessionCancelDiscardsEverything(t *testing.T) {
	stream := newFakeStream([]byte{1, 2, 3, 4})
	dev := wavDevice(stream)
	sess := newSession(dev, "audio/wav", testLimits(), discardLogger())

	require.NoError(t, sess.start(context.Background()))
	sess.Cancel()
	assert.Equal(t, StateCancelled, sess.State())

	_, err := sess.Done()
	assert.ErrorIs(t, err, ErrNoActiveRecording)
}

func TestSessionDoneWithoutRecording(t *testing.T) {
	sess := newSession(wavDevice(newFakeStream()), "audio/wav", testLimits(), discardLogger())
	_, err := sess.Done()
	assert.ErrorIs(t, err, ErrNoActiveRecording)
}

type fakeUploadAPI struct {
	id    string
	ref   string
	err   error
	calls int
}

func (f *fakeUploadAPI) SendAudio(ctx context.Context, peer string, data []byte, format string, durationSec int) (string, string, error) {
	f.calls++
	return f.id, f.ref, f.err
}

func TestPipelineFormatNegotiation(t *testing.T) {
	dev := wavDevice(newFakeStream())
	formats := []string{"audio/ogg;codecs=opus", "audio/webm", "audio/wav"}
	p := NewPipeline(dev, conversation.New(), &fakeUploadAPI{}, formats, testLimits(), discardLogger())

	sess, err := p.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", sess.Format(), "first supported format wins")
}

func TestPipelineNoSupportedFormat(t *testing.T) {
	dev := &fakeDevice{formats: map[string]bool{}}
	p := NewPipeline(dev, conversation.New(), &fakeUploadAPI{}, []string{"audio/ogg"}, testLimits(), discardLogger())

	_, err := p.Start(context.Background())
	assert.ErrorIs(t, err, ErrEncodingUnsupported)
}

func TestPipelineStartCancelsPreviousSession(t *testing.T) {
	dev := wavDevice(newFakeStream())
	p := NewPipeline(dev, conversation.New(), &fakeUploadAPI{}, []string{"audio/wav"}, testLimits(), discardLogger())

	first, err := p.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateRecording, first.State())

	dev.stream = newFakeStream()
	second, err := p.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, first.State())
	assert.Equal(t, StateRecording, second.State())
	assert.Same(t, second, p.Session())
}

func TestPipelineSendConfirms(t *testing.T) {
	store := conversation.New()
	api := &fakeUploadAPI{id: "99", ref: "/audio/99.wav"}
	p := NewPipeline(wavDevice(newFakeStream()), store, api, []string{"audio/wav"}, testLimits(), discardLogger())

	clip := model.AudioClip{Data: []byte{1, 2, 3, 4}, Format: "audio/wav", DurationSec: 3}
	require.NoError(t, p.Send(context.Background(), "alice@example.com", clip))

	msgs := store.History("alice@example.com")
	require.Len(t, msgs, 1)
	assert.Equal(t, "99", msgs[0].ID)
	require.NotNil(t, msgs[0].Audio)
	assert.Equal(t, "/audio/99.wav", msgs[0].Audio.Ref)
}

func TestPipelineSendFailureRemovesMessage(t *testing.T) {
	store := conversation.New()
	api := &fakeUploadAPI{err: errors.New("boom")}
	p := NewPipeline(wavDevice(newFakeStream()), store, api, []string{"audio/wav"}, testLimits(), discardLogger())

	clip := model.AudioClip{Data: []byte{1, 2, 3, 4}, Format: "audio/wav", DurationSec: 3}
	err := p.Send(context.Background(), "alice@example.com", clip)
	require.ErrorIs(t, err, ErrUploadFailed)

	assert.Equal(t, 0, store.Len("alice@example.com"), "failed uploads do not linger")
}
