// Package playback keeps at most one audio clip playing at a time and
// exposes the toggle semantics the message list uses.
package playback

import (
	"log/slog"
	"sync"

	"github.com/dtran/mailflow/internal/model"
)

// Player renders audio. Implementations front real output hardware or a
// test double.
type Player interface {
	// Start begins playing the clip from the beginning. done is invoked
	// once when playback reaches the end on its own; it is not invoked
	// after Stop.
	Start(clip model.AudioClip, done func()) error

	// Pause suspends playback, keeping position.
	Pause()

	// Resume continues paused playback.
	Resume()

	// Stop ends playback and discards position.
	Stop()

	// Progress reports the played fraction in [0, 1].
	Progress() float64
}

// Coordinator serializes playback across all audio messages. Toggling the
// playing clip pauses it, toggling another clip stops the current one and
// starts the new one from the beginning.
type Coordinator struct {
	player Player
	log    *slog.Logger

	mu       sync.Mutex
	activeID string
	paused   bool
}

// New creates a Coordinator over the given player. log may be nil.
func New(player Player, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{player: player, log: log}
}

// Toggle plays, pauses, or resumes the clip identified by id. Starting a
// clip while another is playing stops the other one; its progress resets.
func (c *Coordinator) Toggle(id string, clip model.AudioClip) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeID == id {
		if c.paused {
			c.player.Resume()
			c.paused = false
		} else {
			c.player.Pause()
			c.paused = true
		}
		return nil
	}

	if c.activeID != "" {
		c.player.Stop()
		c.activeID = ""
		c.paused = false
	}

	if err := c.player.Start(clip, func() { c.finished(id) }); err != nil {
		c.log.Warn("playback start failed", "id", id, "err", err)
		return err
	}
	c.activeID = id
	c.paused = false
	return nil
}

// Stop ends any active playback.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID == "" {
		return
	}
	c.player.Stop()
	c.activeID = ""
	c.paused = false
}

// Active returns the id of the clip currently loaded and whether it is
// paused. An empty id means nothing is playing.
func (c *Coordinator) Active() (id string, paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID, c.paused
}

// Progress reports the played fraction of the clip identified by id. Clips
// that are not active report zero.
func (c *Coordinator) Progress(id string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID != id {
		return 0
	}
	return c.player.Progress()
}

// finished clears the active clip after it played to the end.
func (c *Coordinator) finished(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID == id {
		c.activeID = ""
		c.paused = false
	}
}
