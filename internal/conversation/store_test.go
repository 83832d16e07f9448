package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtran/mailflow/internal/model"
)

func serverText(id, body string, sentByMe bool, at time.Time) model.ChatMessage {
	return model.ChatMessage{
		ID:        id,
		Kind:      model.KindText,
		Body:      body,
		SentByMe:  sentByMe,
		Timestamp: at,
		Delivery:  model.DeliveryConfirmed,
	}
}

func TestAppendLocalThenConfirm(t *testing.T) {
	s := New()
	base := time.Now()
	history := []model.ChatMessage{
		serverText("1", "hey", false, base.Add(-3*time.Minute)),
		serverText("2", "how are you", false, base.Add(-2*time.Minute)),
		serverText("3", "you there?", false, base.Add(-time.Minute)),
	}
	s.ReconcileHistory("alice@example.com", history)

	tempID := s.AppendLocal("alice@example.com", "hi")
	require.True(t, model.ChatMessage{ID: tempID}.HasTempID())
	require.Equal(t, 4, s.Len("alice@example.com"))

	s.ConfirmSend("alice@example.com", tempID, "42")

	msgs := s.History("alice@example.com")
	require.Len(t, msgs, 4)
	last := msgs[3]
	assert.Equal(t, "42", last.ID, "server id replaces the temp id in place")
	assert.Equal(t, model.DeliveryConfirmed, last.Delivery)
}

func TestReconcileCollapsesConfirmedSendOntoServerCopy(t *testing.T) {
	s := New()
	base := time.Now()
	history := []model.ChatMessage{
		serverText("1", "hey", false, base.Add(-3*time.Minute)),
		serverText("2", "how are you", false, base.Add(-2*time.Minute)),
		serverText("3", "you there?", false, base.Add(-time.Minute)),
	}
	s.ReconcileHistory("alice@example.com", history)

	tempID := s.AppendLocal("alice@example.com", "hi")
	s.ConfirmSend("alice@example.com", tempID, "42")

	// The next poll includes the send; the count must stay at 4, not 5,
	// and the echoed send must not register as growth.
	snapshot := append(history, serverText("42", "hi", true, base))
	grown, hadHistory := s.ReconcileHistory("alice@example.com", snapshot)

	assert.True(t, hadHistory)
	assert.Equal(t, 4, s.Len("alice@example.com"))
	assert.Equal(t, 0, grown, "a send already confirmed locally is not new")
}

func TestReconcileDedupsPendingSendObservedByPoll(t *testing.T) {
	s := New()
	base := time.Now()
	s.ReconcileHistory("bob@example.com", []model.ChatMessage{
		serverText("1", "yo", false, base.Add(-time.Minute)),
	})

	// Poll sees the send before the send call itself returns.
	s.AppendLocal("bob@example.com", "lunch?")
	snapshot := []model.ChatMessage{
		serverText("1", "yo", false, base.Add(-time.Minute)),
		serverText("7", "lunch?", true, base.Add(30*time.Second)),
	}
	s.ReconcileHistory("bob@example.com", snapshot)

	msgs := s.History("bob@example.com")
	require.Len(t, msgs, 2, "optimistic copy collapses onto the server copy")
	assert.Equal(t, "7", msgs[1].ID)
}

func TestReconcileKeepsPendingOutsideDedupWindow(t *testing.T) {
	s := New()
	base := time.Now()
	s.AppendLocal("bob@example.com", "lunch?")

	// Same body but stamped far in the past: a different, older message.
	snapshot := []model.ChatMessage{
		serverText("5", "lunch?", true, base.Add(-time.Hour)),
	}
	s.ReconcileHistory("bob@example.com", snapshot)

	assert.Equal(t, 2, s.Len("bob@example.com"))
}

func TestFailAndRetrySend(t *testing.T) {
	s := New()
	tempID := s.AppendLocal("alice@example.com", "hi")

	s.FailSend("alice@example.com", tempID)
	msgs := s.History("alice@example.com")
	require.Len(t, msgs, 1)
	assert.Equal(t, model.DeliveryFailed, msgs[0].Delivery)

	// Failed messages survive reconciliation.
	s.ReconcileHistory("alice@example.com", nil)
	require.Equal(t, 1, s.Len("alice@example.com"))

	ok := s.RetrySend("alice@example.com", tempID)
	require.True(t, ok)
	msgs = s.History("alice@example.com")
	assert.Equal(t, model.DeliveryPending, msgs[0].Delivery)

	// Only Failed messages can be retried.
	assert.False(t, s.RetrySend("alice@example.com", tempID))
}

func TestAudioSendRollsBackOnFailure(t *testing.T) {
	s := New()
	clip := model.AudioClip{Data: []byte{1, 2, 3}, Format: "audio/wav", DurationSec: 2}
	tempID := s.AppendLocalAudio("alice@example.com", clip)
	require.Equal(t, 1, s.Len("alice@example.com"))

	s.RemoveLocal("alice@example.com", tempID)
	assert.Equal(t, 0, s.Len("alice@example.com"))
}

func TestConfirmAudioSend(t *testing.T) {
	s := New()
	clip := model.AudioClip{Data: []byte{1, 2, 3}, Format: "audio/wav", DurationSec: 2}
	tempID := s.AppendLocalAudio("alice@example.com", clip)

	s.ConfirmAudioSend("alice@example.com", tempID, "99", "/audio/99.wav")

	msgs := s.History("alice@example.com")
	require.Len(t, msgs, 1)
	assert.Equal(t, "99", msgs[0].ID)
	require.NotNil(t, msgs[0].Audio)
	assert.Equal(t, "/audio/99.wav", msgs[0].Audio.Ref)
	assert.Equal(t, model.DeliveryConfirmed, msgs[0].Delivery)
}

func TestSummariesOrderAndPresence(t *testing.T) {
	s := New()
	now := time.Now()
	s.ApplySummaries([]model.ConversationSummary{
		{Peer: "old@example.com", LastMessageAt: now.Add(-time.Hour)},
		{Peer: "new@example.com", LastMessageAt: now, UnreadCount: 2, IsOnline: true},
	})

	sums := s.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, "new@example.com", sums[0].Peer)
	assert.True(t, s.IsOnline("new@example.com"))
	assert.False(t, s.IsOnline("old@example.com"))

	s.MarkRead("new@example.com")
	sums = s.Summaries()
	assert.Equal(t, 0, sums[0].UnreadCount)
}

func TestReconcileReportsGrowthAndInitialSync(t *testing.T) {
	s := New()
	base := time.Now()

	grown, hadHistory := s.ReconcileHistory("alice@example.com", []model.ChatMessage{
		serverText("1", "a", false, base.Add(-2*time.Minute)),
		serverText("2", "b", false, base.Add(-time.Minute)),
	})
	assert.Equal(t, 2, grown)
	assert.False(t, hadHistory, "first snapshot is initial sync, not new messages")

	grown, hadHistory = s.ReconcileHistory("alice@example.com", []model.ChatMessage{
		serverText("1", "a", false, base.Add(-2*time.Minute)),
		serverText("2", "b", false, base.Add(-time.Minute)),
		serverText("3", "c", false, base),
	})
	assert.Equal(t, 1, grown)
	assert.True(t, hadHistory)
}
