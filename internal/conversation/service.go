package conversation

import (
	"context"
	"fmt"
	"log/slog"
)

// SendAPI is the slice of the server client the send path needs.
type SendAPI interface {
	SendText(ctx context.Context, peer, text string) (string, error)
}

// Service drives the optimistic text-send flow against a Store.
type Service struct {
	store *Store
	api   SendAPI
	log   *slog.Logger
}

// NewService creates a send service. log may be nil.
func NewService(store *Store, api SendAPI, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, api: api, log: log}
}

// Begin appends the optimistic echo and returns the temporary id. It does no
// network work, so the caller can render the Pending message before issuing
// the send.
func (s *Service) Begin(peer, text string) string {
	return s.store.AppendLocal(peer, text)
}

// Finish performs the network send for a message created by Begin. On success
// the temporary id is replaced in place by the server id; on failure the
// message is marked Failed and kept visible for retry.
func (s *Service) Finish(ctx context.Context, peer, tempID, text string) error {
	serverID, err := s.api.SendText(ctx, peer, text)
	if err != nil {
		s.log.Warn("chat send failed", "peer", peer, "temp_id", tempID, "err", err)
		s.store.FailSend(peer, tempID)
		return fmt.Errorf("sending to %s: %w", peer, err)
	}
	s.store.ConfirmSend(peer, tempID, serverID)
	return nil
}

// Retry re-attempts a Failed message. It flips the message back to Pending
// and performs the send again under the same temporary id.
func (s *Service) Retry(ctx context.Context, peer, tempID, text string) error {
	if !s.store.RetrySend(peer, tempID) {
		return fmt.Errorf("message %s is not retryable", tempID)
	}
	return s.Finish(ctx, peer, tempID, text)
}
