package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/novap2p/novap2p/shared/cqrs"
	"github.com/novap2p/novap2p/shared/events"
)

// Revoker remembers signed-out tokens.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
}

// EventPublisher appends to a Redis stream.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// SessionCommandService ends sessions.
type SessionCommandService struct {
	revoker   Revoker
	publisher EventPublisher
}

func NewSessionCommandService(revoker Revoker, publisher EventPublisher) *SessionCommandService {
	return &SessionCommandService{revoker: revoker, publisher: publisher}
}

// SignOut revokes the token until it would have expired and tells the
// user's other clients.
func (s *SessionCommandService) SignOut(ctx context.Context, cmd cqrs.SignOutCommand) error {
	if err := s.revoker.Revoke(ctx, cmd.TokenID, time.Unix(cmd.ExpiresAt, 0)); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if err := s.publisher.Publish(ctx, events.IdentityEventsStream, events.SessionSignedOut, events.SessionChangedEvent{
		UserID:    cmd.UserID,
		SessionID: cmd.TokenID,
	}); err != nil {
		slog.WarnContext(ctx, "failed to publish session.signed_out event", "user_id", cmd.UserID, "error", err)
	}
	return nil
}
