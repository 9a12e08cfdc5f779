package command

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novap2p/novap2p/shared/auth"
	"github.com/novap2p/novap2p/shared/cqrs"
	"github.com/novap2p/novap2p/shared/events"
)

func TestSignOutRevokesAndAnnounces(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	revoked := auth.NewRevocationList(client)
	svc := NewSessionCommandService(revoked, events.NewPublisher(client))

	err := svc.SignOut(ctx, cqrs.SignOutCommand{
		UserID:    "usr-dep1",
		TokenID:   "jti-1",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	ok, err := revoked.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	msgs, err := client.XRange(ctx, events.IdentityEventsStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Values["event"], events.SessionSignedOut)
}

func TestSignOutOfExpiredTokenIsNoop(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	revoked := auth.NewRevocationList(client)
	svc := NewSessionCommandService(revoked, events.NewPublisher(client))

	require.NoError(t, svc.SignOut(context.Background(), cqrs.SignOutCommand{
		UserID: "usr-dep1", TokenID: "jti-old", ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}))
	ok, err := revoked.IsRevoked(context.Background(), "jti-old")
	require.NoError(t, err)
	assert.False(t, ok)
}
