package query

import (
	"context"

	"github.com/novap2p/novap2p/shared/cqrs"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/models"
)

// UserReader is the read side of the identity store.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	ListByRole(ctx context.Context, role string) ([]models.Identity, error)
	AssignedCounts(ctx context.Context, ids []string) map[string]int64
}

// UserQueryService reads identities from the Redis cache (with a Postgres fallback).
type UserQueryService struct {
	readRepo UserReader
}

func NewUserQueryService(readRepo UserReader) *UserQueryService {
	return &UserQueryService{readRepo: readRepo}
}

func (s *UserQueryService) GetUser(ctx context.Context, q cqrs.GetUserQuery) (*models.Identity, error) {
	if q.UserID != q.RequestingUserID {
		return nil, errs.ErrForbidden
	}
	return s.readRepo.GetByID(ctx, q.UserID)
}

// ListByRole backs the depositor directory.
func (s *UserQueryService) ListByRole(ctx context.Context, q cqrs.ListUsersByRoleQuery) ([]models.DepositorView, error) {
	identities, err := s.readRepo.ListByRole(ctx, q.Role)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(identities))
	for i := range identities {
		ids[i] = identities[i].ID
	}
	counts := s.readRepo.AssignedCounts(ctx, ids)

	views := make([]models.DepositorView, len(identities))
	for i, identity := range identities {
		views[i] = models.DepositorView{
			ID:               identity.ID,
			Email:            identity.Email,
			Username:         identity.Username,
			Role:             identity.Role,
			AssignedAccounts: counts[identity.ID],
		}
	}
	return views, nil
}
