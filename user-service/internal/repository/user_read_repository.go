package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/novap2p/novap2p/shared/database"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/models"
	sharedredis "github.com/novap2p/novap2p/shared/redis"
)

const (
	userViewKeyPrefix = "user:view:"
	assignedKeyPrefix = "depositor:assigned:"
	removedKeyPrefix  = "depositor:removed:"
)

// UserReadRepository handles all read operations for users.
// It uses Redis as the primary read store, falling back to PostgreSQL on a miss.
type UserReadRepository struct {
	db    *sql.DB
	redis *goredis.Client
	cache *sharedredis.ViewCache[models.Identity]
}

func NewUserReadRepository(db *sql.DB, redisClient *goredis.Client) *UserReadRepository {
	return &UserReadRepository{
		db:    db,
		redis: redisClient,
		cache: sharedredis.NewViewCache[models.Identity](redisClient, userViewKeyPrefix, 0),
	}
}

// GetByID returns an identity from Redis first, then PostgreSQL.
func (r *UserReadRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	if view, ok := r.cache.Get(ctx, id); ok {
		return view, nil
	}

	query := `SELECT id, email, username, role, created_at FROM users WHERE id = $1`
	var identity models.Identity
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&identity.ID, &identity.Email, &identity.Username, &identity.Role, &identity.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, database.Wrap("failed to get user", err)
	}

	// Warm the cache
	r.CacheUserView(ctx, &identity)
	return &identity, nil
}

// ListByRole returns every identity holding role, oldest first.
func (r *UserReadRepository) ListByRole(ctx context.Context, role string) ([]models.Identity, error) {
	query := `SELECT id, email, username, role, created_at FROM users WHERE role = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, database.Wrap("failed to list users", err)
	}
	defer rows.Close()

	identities := make([]models.Identity, 0)
	for rows.Next() {
		var identity models.Identity
		if err := rows.Scan(&identity.ID, &identity.Email, &identity.Username, &identity.Role, &identity.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("failed to list users", err)
	}
	return identities, nil
}

// CacheUserView stores or refreshes the Redis read model for a user.
func (r *UserReadRepository) CacheUserView(ctx context.Context, identity *models.Identity) {
	r.cache.Set(ctx, identity.ID, identity)
}

// Assignment sets hold account ids, so a redelivered stream entry cannot
// count twice. Account ids are never reused; a removed id is remembered so a
// late create replayed after its delete stays removed.
var (
	addAssignedScript = goredis.NewScript(`
if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 1 then
	return 0
end
return redis.call("SADD", KEYS[1], ARGV[1])
`)
	removeAssignedScript = goredis.NewScript(`
redis.call("SADD", KEYS[2], ARGV[1])
return redis.call("SREM", KEYS[1], ARGV[1])
`)
)

func assignedKeys(depositorID string) []string {
	return []string{assignedKeyPrefix + depositorID, removedKeyPrefix + depositorID}
}

// AddAssigned records accountID as assigned to depositorID.
func (r *UserReadRepository) AddAssigned(ctx context.Context, depositorID, accountID string) error {
	return addAssignedScript.Run(ctx, r.redis, assignedKeys(depositorID), accountID).Err()
}

// RemoveAssigned drops accountID from depositorID's assignments for good.
func (r *UserReadRepository) RemoveAssigned(ctx context.Context, depositorID, accountID string) error {
	return removeAssignedScript.Run(ctx, r.redis, assignedKeys(depositorID), accountID).Err()
}

// AssignedCounts returns how many accounts each of ids holds. A Redis
// failure degrades to all zeros.
func (r *UserReadRepository) AssignedCounts(ctx context.Context, ids []string) map[string]int64 {
	counts := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return counts
	}
	cmds := make([]*goredis.IntCmd, len(ids))
	_, err := r.redis.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.SCard(ctx, assignedKeyPrefix+id)
		}
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "assigned account counters unavailable", "error", err)
		return counts
	}
	for i, cmd := range cmds {
		counts[ids[i]] = cmd.Val()
	}
	return counts
}
