package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtran/mailflow/internal/conversation"
	"github.com/dtran/mailflow/internal/keys"
	"github.com/dtran/mailflow/internal/model"
	"github.com/dtran/mailflow/internal/playback"
)

type nopPlayer struct{}

func (nopPlayer) Start(model.AudioClip, func()) error { return nil }
func (nopPlayer) Pause()                              {}
func (nopPlayer) Resume()                             {}
func (nopPlayer) Stop()                               {}
func (nopPlayer) Progress() float64                   { return 0 }

func newTestModel(conv *conversation.Store) Model {
	pb := playback.New(nopPlayer{}, nil)
	m := New(conv, pb, keys.DefaultKeyMap(), 80, 24)
	m.mode = modeConversation
	m.openPeer = "alice@example.com"
	return m
}

func TestLatestAudioFindsNewestClip(t *testing.T) {
	conv := conversation.New()
	base := time.Now()
	conv.ReconcileHistory("alice@example.com", []model.ChatMessage{
		{ID: "1", Kind: model.KindText, Body: "hey", Timestamp: base.Add(-2 * time.Minute)},
		{ID: "2", Kind: model.KindAudio, Timestamp: base.Add(-time.Minute),
			Audio: &model.AudioClip{Ref: "/audio/2.ogg", DurationSec: 4}},
		{ID: "3", Kind: model.KindAudio, Timestamp: base,
			Audio: &model.AudioClip{Ref: "/audio/3.ogg", DurationSec: 7}},
	})

	m := newTestModel(conv)

	id, clip, ok := m.latestAudio()
	require.True(t, ok)
	assert.Equal(t, "3", id, "newest audio message wins")
	assert.Equal(t, "/audio/3.ogg", clip.Ref)
	assert.Equal(t, 7, clip.DurationSec)
}

func TestLatestAudioSkipsMissingClipPayload(t *testing.T) {
	conv := conversation.New()
	base := time.Now()
	conv.ReconcileHistory("alice@example.com", []model.ChatMessage{
		{ID: "1", Kind: model.KindAudio, Timestamp: base.Add(-time.Minute),
			Audio: &model.AudioClip{Ref: "/audio/1.ogg", DurationSec: 3}},
		// A malformed server row can arrive typed audio with no payload.
		{ID: "2", Kind: model.KindAudio, Timestamp: base},
	})

	m := newTestModel(conv)

	id, clip, ok := m.latestAudio()
	require.True(t, ok)
	assert.Equal(t, "1", id, "rows without a clip are skipped")
	assert.Equal(t, "/audio/1.ogg", clip.Ref)
}

func TestRenderAudioBodyWithoutClipPayload(t *testing.T) {
	m := newTestModel(conversation.New())

	out := m.renderAudioBody(model.ChatMessage{ID: "2", Kind: model.KindAudio})
	assert.Equal(t, "voice message", out)
}
