package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dtran/mailflow/internal/conversation"
	"github.com/dtran/mailflow/internal/model"
)

// UploadAPI is the slice of the server client the pipeline consumes.
type UploadAPI interface {
	SendAudio(ctx context.Context, peer string, data []byte, format string, durationSec int) (id, audioRef string, err error)
}

// Pipeline owns recording sessions and uploads finished clips. At most one
// session exists at a time; starting a new one cancels the previous.
type Pipeline struct {
	device  Device
	store   *conversation.Store
	api     UploadAPI
	formats []string
	limits  Limits
	log     *slog.Logger

	mu      sync.Mutex
	session *Session
}

// NewPipeline creates a Pipeline. formats is the preference-ordered list of
// recording formats to negotiate against the device. log may be nil.
func NewPipeline(device Device, store *conversation.Store, api UploadAPI, formats []string, limits Limits, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		device:  device,
		store:   store,
		api:     api,
		formats: formats,
		limits:  limits,
		log:     log,
	}
}

// Start begins a new recording session, cancelling any session already in
// progress. The format is the first configured one the device supports.
func (p *Pipeline) Start(ctx context.Context) (*Session, error) {
	format, err := p.negotiate()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	prev := p.session
	sess := newSession(p.device, format, p.limits, p.log)
	p.session = sess
	p.mu.Unlock()

	if prev != nil {
		switch prev.State() {
		case StateRecording, StatePaused:
			prev.Cancel()
		}
	}

	if err := sess.start(ctx); err != nil {
		return sess, err
	}
	return sess, nil
}

// Session returns the current session, or nil when none has been started.
func (p *Pipeline) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// negotiate picks the first configured format the device supports.
func (p *Pipeline) negotiate() (string, error) {
	for i, format := range p.formats {
		if p.device.Supports(format) {
			if i > 0 {
				p.log.Info("recording format fallback", "format", format, "preferred", p.formats[0])
			}
			return format, nil
		}
	}
	return "", ErrEncodingUnsupported
}

// Send uploads a finished clip to peer. The message appears in the
// conversation immediately as pending; a failed upload removes it again,
// unlike failed text sends, because the clip data survives only in memory
// and cannot be retried later.
func (p *Pipeline) Send(ctx context.Context, peer string, clip model.AudioClip) error {
	p.mu.Lock()
	if p.session != nil && p.session.State() == StateReady {
		p.session.setState(StateUploading)
	}
	p.mu.Unlock()

	tempID := p.store.AppendLocalAudio(peer, clip)

	id, audioRef, err := p.api.SendAudio(ctx, peer, clip.Data, clip.Format, clip.DurationSec)
	if err != nil {
		p.store.RemoveLocal(peer, tempID)
		p.finishSession()
		p.log.Warn("audio upload failed", "peer", peer, "err", err)
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	p.store.ConfirmAudioSend(peer, tempID, id, audioRef)
	p.finishSession()
	return nil
}

func (p *Pipeline) finishSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil && p.session.State() == StateUploading {
		p.session.setState(StateIdle)
	}
}
