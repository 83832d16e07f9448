package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtran/mailflow/internal/model"
)

type fakeSendAPI struct {
	nextID string
	err    error
	calls  int
}

func (f *fakeSendAPI) SendText(ctx context.Context, peer, text string) (string, error) {
	f.calls++
	return f.nextID, f.err
}

func TestServiceFinishConfirms(t *testing.T) {
	store := New()
	api := &fakeSendAPI{nextID: "42"}
	svc := NewService(store, api, nil)

	tempID := svc.Begin("alice@example.com", "hi")
	msgs := store.History("alice@example.com")
	require.Len(t, msgs, 1)
	assert.Equal(t, model.DeliveryPending, msgs[0].Delivery)

	require.NoError(t, svc.Finish(context.Background(), "alice@example.com", tempID, "hi"))
	msgs = store.History("alice@example.com")
	assert.Equal(t, "42", msgs[0].ID)
	assert.Equal(t, model.DeliveryConfirmed, msgs[0].Delivery)
}

func TestServiceFinishFailureKeepsMessage(t *testing.T) {
	store := New()
	api := &fakeSendAPI{err: errors.New("boom")}
	svc := NewService(store, api, nil)

	tempID := svc.Begin("alice@example.com", "hi")
	err := svc.Finish(context.Background(), "alice@example.com", tempID, "hi")
	require.Error(t, err)

	msgs := store.History("alice@example.com")
	require.Len(t, msgs, 1, "failed sends stay visible")
	assert.Equal(t, model.DeliveryFailed, msgs[0].Delivery)
}

func TestServiceRetry(t *testing.T) {
	store := New()
	api := &fakeSendAPI{err: errors.New("boom")}
	svc := NewService(store, api, nil)

	tempID := svc.Begin("alice@example.com", "hi")
	_ = svc.Finish(context.Background(), "alice@example.com", tempID, "hi")

	api.err = nil
	api.nextID = "43"
	require.NoError(t, svc.Retry(context.Background(), "alice@example.com", tempID, "hi"))
	assert.Equal(t, 2, api.calls)

	msgs := store.History("alice@example.com")
	assert.Equal(t, "43", msgs[0].ID)

	// A confirmed message is not retryable.
	assert.Error(t, svc.Retry(context.Background(), "alice@example.com", tempID, "hi"))
}
