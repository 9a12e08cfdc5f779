package query

import (
	"context"
	"errors"
	"log/slog"

	"github.com/novap2p/novap2p/shared/auth"
	"github.com/novap2p/novap2p/shared/cqrs"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/models"
	"github.com/novap2p/novap2p/shared/utils"
)

// UserFinder looks up credentials by email.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// TokenVerifier resolves a token that has not been signed out.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// EventPublisher appends to a Redis stream.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// AuthQueryService handles sign-in and token refresh. Neither changes
// application state; signing out lives on the command side.
type AuthQueryService struct {
	users     UserFinder
	tokens    *auth.Tokens
	verifier  TokenVerifier
	publisher EventPublisher
	check     func(password, hash string) bool
}

func NewAuthQueryService(users UserFinder, tokens *auth.Tokens, verifier TokenVerifier, publisher EventPublisher) *AuthQueryService {
	return &AuthQueryService{
		users:     users,
		tokens:    tokens,
		verifier:  verifier,
		publisher: publisher,
		check:     utils.CheckPassword,
	}
}

// SignIn exchanges credentials for a session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *AuthQueryService) SignIn(ctx context.Context, cmd cqrs.SignInCommand) (*models.Session, error) {
	user, err := s.users.GetByEmail(ctx, utils.NormalizeEmail(cmd.Email))
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.Auth("sign in", errs.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}
	if !s.check(cmd.Password, user.PasswordHash) {
		return nil, errs.Auth("sign in", errs.ErrInvalidCredentials)
	}

	session, claims, err := s.tokens.Issue(user.Identity)
	if err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, events.IdentityEventsStream, events.SessionSignedIn, events.SessionChangedEvent{
		UserID:    user.ID,
		SessionID: claims.ID,
	}); err != nil {
		slog.WarnContext(ctx, "failed to publish session.signed_in event", "user_id", user.ID, "error", err)
	}
	return session, nil
}

// RefreshToken issues a fresh session for a token that is still valid.
func (s *AuthQueryService) RefreshToken(ctx context.Context, cmd cqrs.RefreshTokenCommand) (*models.Session, error) {
	claims, err := s.verifier.Verify(ctx, cmd.Token)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidToken) {
			return nil, errs.Auth("refresh", err)
		}
		return nil, err
	}
	session, _, err := s.tokens.Issue(claims.Identity())
	return session, err
}
