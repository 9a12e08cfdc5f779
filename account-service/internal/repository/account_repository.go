package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/novap2p/novap2p/shared/database"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/models"
)

const accountColumns = `id, amount, ifsc, account_number, account_name, bank_name, upi_id, date, depositor_id, created_by, verified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		account models.Account
		upiID   sql.NullString
		date    time.Time
	)
	err := row.Scan(
		&account.ID, &account.Amount, &account.IFSC, &account.AccountNumber,
		&account.AccountName, &account.BankName, &upiID, &date,
		&account.DepositorID, &account.CreatedBy, &account.Verified,
	)
	if err != nil {
		return nil, err
	}
	account.UPIID = upiID.String
	account.Date = date.Format(models.DateLayout)
	return &account, nil
}

// AccountWriteRepository handles all state-mutating operations for accounts.
// It operates exclusively against the PostgreSQL write store (source of truth).
type AccountWriteRepository struct {
	db *sql.DB
}

func NewAccountWriteRepository(db *sql.DB) *AccountWriteRepository {
	return &AccountWriteRepository{db: db}
}

func (r *AccountWriteRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	upiID := sql.NullString{String: account.UPIID, Valid: account.UPIID != ""}
	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Amount, account.IFSC, account.AccountNumber,
		account.AccountName, account.BankName, upiID, account.Date,
		account.DepositorID, account.CreatedBy, account.Verified,
	)
	if err != nil {
		return database.Wrap("failed to create account", err)
	}
	return nil
}

// SetVerified is a single unconditional row update; the last writer wins.
func (r *AccountWriteRepository) SetVerified(ctx context.Context, id string, verified bool) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET verified = $2
		WHERE id = $1
		RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id, verified))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, database.Wrap("failed to update account", err)
	}
	return account, nil
}

// Delete removes the row and returns it as it was before deletion.
func (r *AccountWriteRepository) Delete(ctx context.Context, id string) (*models.Account, error) {
	query := `DELETE FROM accounts WHERE id = $1 RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, database.Wrap("failed to delete account", err)
	}
	return account, nil
}
