// Package speaker renders audio clips and the new-message tone through the
// system output device.
package speaker

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"

	"github.com/dtran/mailflow/internal/model"
)

// playbackRate is the fixed mixer rate; decoded clips are resampled to it
// so the speaker is initialized exactly once.
const playbackRate = beep.SampleRate(44100)

// Player plays one clip at a time through the beep mixer.
type Player struct {
	log *slog.Logger

	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	stream beep.StreamSeekCloser
	ctrl   *beep.Ctrl
}

// NewPlayer creates a Player. log may be nil.
func NewPlayer(log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	return &Player{log: log}
}

func (p *Player) ensureInit() error {
	p.initOnce.Do(func() {
		p.initErr = speaker.Init(playbackRate, playbackRate.N(100*time.Millisecond))
	})
	return p.initErr
}

// Start begins playing the clip from the beginning. done fires once when
// the clip plays to the end; it does not fire after Stop.
func (p *Player) Start(clip model.AudioClip, done func()) error {
	if err := p.ensureInit(); err != nil {
		return fmt.Errorf("initializing speaker: %w", err)
	}

	stream, format, err := decode(clip)
	if err != nil {
		return err
	}

	ctrl := &beep.Ctrl{
		Streamer: beep.Resample(4, format.SampleRate, playbackRate, stream),
	}

	p.mu.Lock()
	if p.stream != nil {
		speaker.Clear()
		p.stream.Close()
	}
	p.stream = stream
	p.ctrl = ctrl
	p.mu.Unlock()

	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		p.mu.Lock()
		if p.stream == stream {
			p.stream.Close()
			p.stream = nil
			p.ctrl = nil
		}
		p.mu.Unlock()
		done()
	})))
	return nil
}

// Pause suspends playback, keeping position.
func (p *Player) Pause() {
	p.setPaused(true)
}

// Resume continues paused playback.
func (p *Player) Resume() {
	p.setPaused(false)
}

func (p *Player) setPaused(paused bool) {
	p.mu.Lock()
	ctrl := p.ctrl
	p.mu.Unlock()
	if ctrl == nil {
		return
	}
	speaker.Lock()
	ctrl.Paused = paused
	speaker.Unlock()
}

// Stop ends playback and discards position.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return
	}
	speaker.Clear()
	p.stream.Close()
	p.stream = nil
	p.ctrl = nil
}

// Progress reports the played fraction in [0, 1].
func (p *Player) Progress() float64 {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()
	if stream == nil {
		return 0
	}

	speaker.Lock()
	pos := stream.Position()
	length := stream.Len()
	speaker.Unlock()

	if length <= 0 {
		return 0
	}
	f := float64(pos) / float64(length)
	if f > 1 {
		f = 1
	}
	return f
}

// decode picks a decoder from the clip's container format.
func decode(clip model.AudioClip) (beep.StreamSeekCloser, beep.Format, error) {
	rc := io.NopCloser(bytes.NewReader(clip.Data))
	switch {
	case strings.HasPrefix(clip.Format, "audio/wav"):
		return wav.Decode(rc)
	case strings.HasPrefix(clip.Format, "audio/ogg"):
		return vorbis.Decode(rc)
	case strings.HasPrefix(clip.Format, "audio/mpeg"), strings.HasPrefix(clip.Format, "audio/mp3"):
		return mp3.Decode(rc)
	}
	return nil, beep.Format{}, fmt.Errorf("unsupported playback format %q", clip.Format)
}
