package speaker

import (
	"math"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

const (
	toneFreq     = 880.0
	toneDuration = 300 * time.Millisecond
)

// Notify plays a short sine tone for new-mail and new-message events. It is
// fire-and-forget; errors initializing the output device are swallowed since
// a missing tone is not worth surfacing.
func (p *Player) Notify() {
	if err := p.ensureInit(); err != nil {
		p.log.Debug("notification tone skipped", "err", err)
		return
	}

	total := playbackRate.N(toneDuration)
	generated := 0
	tone := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if generated >= total {
			return 0, false
		}
		n := len(samples)
		if remaining := total - generated; n > remaining {
			n = remaining
		}
		for i := 0; i < n; i++ {
			t := float64(generated+i) / float64(playbackRate)
			// Linear fade-out keeps the tone from clicking at the end.
			env := 1 - float64(generated+i)/float64(total)
			v := 0.25 * env * math.Sin(2*math.Pi*toneFreq*t)
			samples[i][0] = v
			samples[i][1] = v
		}
		generated += n
		return n, true
	})

	speaker.Play(tone)
}
