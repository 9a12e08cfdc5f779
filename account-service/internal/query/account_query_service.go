package query

import (
	"context"

	"github.com/novap2p/novap2p/shared/cqrs"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/models"
)

// AccountReader is the read side of the account store.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context, filter models.AccountFilter) ([]models.Account, error)
}

type AccountQueryService struct {
	readRepo AccountReader
}

func NewAccountQueryService(readRepo AccountReader) *AccountQueryService {
	return &AccountQueryService{readRepo: readRepo}
}

// GetAccount fetches a single account. Depositors only see their own.
func (s *AccountQueryService) GetAccount(ctx context.Context, id, requestingUserID, requestingRole string) (*models.Account, error) {
	account, err := s.readRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if requestingRole == models.RoleDepositor && account.DepositorID != requestingUserID {
		return nil, errs.ErrNotAssigned
	}
	return account, nil
}

// ListAccounts returns the accounts visible to the caller. A depositor is
// always narrowed to their own records.
func (s *AccountQueryService) ListAccounts(ctx context.Context, q cqrs.ListAccountsQuery) ([]models.Account, error) {
	filter, err := VisibleFilter(q.RequestingUserID, q.RequestingRole, q.DepositorID)
	if err != nil {
		return nil, err
	}
	return s.readRepo.List(ctx, filter)
}

// VisibleFilter resolves the filter a caller is allowed to use.
func VisibleFilter(userID, role, depositorID string) (models.AccountFilter, error) {
	if role != models.RoleDepositor {
		return models.AccountFilter{DepositorID: depositorID}, nil
	}
	if depositorID != "" && depositorID != userID {
		return models.AccountFilter{}, errs.ErrForbidden
	}
	return models.AccountFilter{DepositorID: userID}, nil
}
