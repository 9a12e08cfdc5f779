package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/novap2p/novap2p/shared/cqrs"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/models"
	"github.com/novap2p/novap2p/shared/utils"
)

// AccountWriter is the PostgreSQL write store.
type AccountWriter interface {
	Create(ctx context.Context, account *models.Account) error
	SetVerified(ctx context.Context, id string, verified bool) (*models.Account, error)
	Delete(ctx context.Context, id string) (*models.Account, error)
}

// AccountViews is the Redis read model kept in sync by the command side.
type AccountViews interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	CacheAccountView(ctx context.Context, account *models.Account)
	InvalidateAccountView(ctx context.Context, id string)
}

// EventPublisher appends to a Redis stream.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// AccountCommandService writes account state and keeps the read model in sync.
type AccountCommandService struct {
	writeRepo AccountWriter
	readRepo  AccountViews
	publisher EventPublisher
	now       func() time.Time
}

func NewAccountCommandService(writeRepo AccountWriter, readRepo AccountViews, publisher EventPublisher) *AccountCommandService {
	return &AccountCommandService{
		writeRepo: writeRepo,
		readRepo:  readRepo,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateAccount stores a new unverified account assigned to cmd.DepositorID.
func (s *AccountCommandService) CreateAccount(ctx context.Context, cmd cqrs.CreateAccountCommand) (*models.Account, error) {
	if strings.TrimSpace(cmd.DepositorID) == "" {
		return nil, errs.Invalid("depositor_id", "Select a depositor", errs.ErrNoDepositor)
	}
	amount, err := utils.CheckAmount(cmd.Amount)
	if err != nil {
		return nil, errs.Invalid("amount", err.Error(), err)
	}
	date := cmd.Date
	if date == "" {
		date = s.now().UTC().Format(models.DateLayout)
	} else if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, errs.Invalid("date", "Date must be YYYY-MM-DD", err)
	}

	account := &models.Account{
		ID:            uuid.NewString(),
		Amount:        amount,
		IFSC:          strings.ToUpper(strings.TrimSpace(cmd.IFSC)),
		AccountNumber: strings.TrimSpace(cmd.AccountNumber),
		AccountName:   strings.TrimSpace(cmd.AccountName),
		BankName:      strings.TrimSpace(cmd.BankName),
		UPIID:         strings.TrimSpace(cmd.UPIID),
		Date:          date,
		DepositorID:   cmd.DepositorID,
		CreatedBy:     cmd.RequestingUserID,
		Verified:      false,
	}
	if err := s.writeRepo.Create(ctx, account); err != nil {
		return nil, err
	}
	s.readRepo.CacheAccountView(ctx, account)
	s.publish(ctx, events.AccountCreated, events.AccountChangedEvent{
		AccountID:   account.ID,
		DepositorID: account.DepositorID,
		New:         account,
	})
	return account, nil
}

// SetVerified flips the verified flag. A depositor may only touch accounts
// assigned to them; an order giver may touch any.
func (s *AccountCommandService) SetVerified(ctx context.Context, cmd cqrs.SetVerifiedCommand) (*models.Account, error) {
	old, err := s.readRepo.GetByID(ctx, cmd.AccountID)
	if err != nil {
		return nil, err
	}
	if cmd.RequestingRole == models.RoleDepositor && old.DepositorID != cmd.RequestingUserID {
		return nil, errs.ErrNotAssigned
	}
	updated, err := s.writeRepo.SetVerified(ctx, cmd.AccountID, cmd.Verified)
	if err != nil {
		return nil, err
	}
	s.readRepo.CacheAccountView(ctx, updated)
	s.publish(ctx, events.AccountUpdated, events.AccountChangedEvent{
		AccountID:   updated.ID,
		DepositorID: updated.DepositorID,
		Old:         old,
		New:         updated,
	})
	return updated, nil
}

// DeleteAccount hard-deletes the account.
func (s *AccountCommandService) DeleteAccount(ctx context.Context, cmd cqrs.DeleteAccountCommand) error {
	old, err := s.writeRepo.Delete(ctx, cmd.AccountID)
	if err != nil {
		return err
	}
	s.readRepo.InvalidateAccountView(ctx, cmd.AccountID)
	s.publish(ctx, events.AccountDeleted, events.AccountChangedEvent{
		AccountID:   old.ID,
		DepositorID: old.DepositorID,
		Old:         old,
	})
	return nil
}

// HandleAccountEvent replays a change onto the read model, repairing views a
// failed cache write left stale. Redelivery is harmless.
func (s *AccountCommandService) HandleAccountEvent(ctx context.Context, event events.Event) error {
	var data events.AccountChangedEvent
	switch event.Type {
	case events.AccountCreated, events.AccountUpdated, events.AccountDeleted:
		if err := event.Decode(&data); err != nil {
			return err
		}
	default:
		return nil
	}
	if data.New == nil {
		s.readRepo.InvalidateAccountView(ctx, data.AccountID)
		return nil
	}
	s.readRepo.CacheAccountView(ctx, data.New)
	return nil
}

func (s *AccountCommandService) publish(ctx context.Context, eventType string, data events.AccountChangedEvent) {
	if err := s.publisher.Publish(ctx, events.AccountEventsStream, eventType, data); err != nil {
		slog.WarnContext(ctx, fmt.Sprintf("failed to publish %s event", eventType), "account_id", data.AccountID, "error", err)
	}
}
