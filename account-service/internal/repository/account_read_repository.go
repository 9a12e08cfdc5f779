package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/novap2p/novap2p/shared/database"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/models"
	sharedredis "github.com/novap2p/novap2p/shared/redis"
)

const accountViewKeyPrefix = "account:view:"

// AccountReadRepository handles all read operations for accounts.
// Single-record reads go to Redis first and fall back to PostgreSQL, warming
// the cache on every cold read. Listings always come from PostgreSQL.
type AccountReadRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[models.AccountView]
	now   func() time.Time
}

func NewAccountReadRepository(db *sql.DB, redisClient *goredis.Client) *AccountReadRepository {
	return &AccountReadRepository{
		db:    db,
		cache: sharedredis.NewViewCache[models.AccountView](redisClient, accountViewKeyPrefix, 0),
		now:   time.Now,
	}
}

// GetByID returns an account, trying Redis first then PostgreSQL.
func (r *AccountReadRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if view, ok := r.cache.Get(ctx, id); ok {
		return &view.Account, nil
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, database.Wrap("failed to get account", err)
	}

	r.CacheAccountView(ctx, account)
	return account, nil
}

// List returns the accounts matching filter, newest date first.
func (r *AccountReadRepository) List(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	if filter.DepositorID != "" {
		query += ` WHERE depositor_id = $1`
		args = append(args, filter.DepositorID)
	}
	query += ` ORDER BY date DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.Wrap("failed to list accounts", err)
	}
	defer rows.Close()

	accounts := make([]models.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("failed to list accounts", err)
	}
	return accounts, nil
}

// CacheAccountView stores or refreshes the Redis read model for an account.
// Called after every mutation to keep the read model current.
func (r *AccountReadRepository) CacheAccountView(ctx context.Context, account *models.Account) {
	r.cache.Set(ctx, account.ID, &models.AccountView{Account: *account, CachedAt: r.now().Unix()})
}

// InvalidateAccountView removes the Redis read model entry for a deleted account.
func (r *AccountReadRepository) InvalidateAccountView(ctx context.Context, id string) {
	r.cache.Delete(ctx, id)
}
