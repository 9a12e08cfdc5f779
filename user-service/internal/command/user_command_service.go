package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/novap2p/novap2p/shared/cqrs"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/models"
	"github.com/novap2p/novap2p/shared/utils"
)

// UserWriter is the PostgreSQL write store.
type UserWriter interface {
	Create(ctx context.Context, user *models.User) error
}

// UserViews is the Redis side: identity cache and assigned-account counters.
type UserViews interface {
	CacheUserView(ctx context.Context, identity *models.Identity)
	AddAssigned(ctx context.Context, depositorID, accountID string) error
	RemoveAssigned(ctx context.Context, depositorID, accountID string) error
}

// EventPublisher appends to a Redis stream.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// UserCommandService writes user state to PostgreSQL and keeps the Redis
// read model up to date.
type UserCommandService struct {
	writeRepo UserWriter
	readRepo  UserViews
	publisher EventPublisher
	hash      func(string) (string, error)
}

func NewUserCommandService(writeRepo UserWriter, readRepo UserViews, publisher EventPublisher) *UserCommandService {
	return &UserCommandService{
		writeRepo: writeRepo,
		readRepo:  readRepo,
		publisher: publisher,
		hash:      utils.HashPassword,
	}
}

// CreateUser registers a new identity. An empty role means order giver.
func (s *UserCommandService) CreateUser(ctx context.Context, cmd cqrs.CreateUserCommand) (*models.Identity, error) {
	passwordHash, err := s.hash(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &models.User{
		Identity: models.Identity{
			ID:        utils.GenerateID("usr"),
			Email:     utils.NormalizeEmail(cmd.Email),
			Username:  strings.TrimSpace(cmd.Username),
			Role:      models.NormalizeRole(cmd.Role),
			CreatedAt: time.Now().UTC(),
		},
		PasswordHash: passwordHash,
	}
	if err := s.writeRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.readRepo.CacheUserView(ctx, &user.Identity)
	if err := s.publisher.Publish(ctx, events.IdentityEventsStream, events.UserCreated, events.UserCreatedEvent{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		Role:     user.Role,
	}); err != nil {
		slog.WarnContext(ctx, "failed to publish user.created event", "user_id", user.ID, "error", err)
	}
	return &user.Identity, nil
}

// HandleAccountEvent is the Redis stream subscriber handler. It keeps the
// per-depositor assigned-account counts current and may see an event more
// than once. Accounts are never reassigned, so updates are ignored.
func (s *UserCommandService) HandleAccountEvent(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.AccountCreated:
		var data events.AccountChangedEvent
		if err := event.Decode(&data); err != nil {
			return err
		}
		return s.readRepo.AddAssigned(ctx, data.DepositorID, data.AccountID)
	case events.AccountDeleted:
		var data events.AccountChangedEvent
		if err := event.Decode(&data); err != nil {
			return err
		}
		return s.readRepo.RemoveAssigned(ctx, data.DepositorID, data.AccountID)
	}
	return nil
}
