package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fintrack-backend/pkg/redis"
)

func newManager(t *testing.T, ttl time.Duration) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	manager, err := NewManager(client, ttl)
	require.NoError(t, err)
	return manager, mr
}

func TestCheckAndMarkProcessed(t *testing.T) {
	manager, mr := newManager(t, 24*time.Hour)
	ctx := context.Background()

	already, err := manager.CheckAndMarkProcessed(ctx, "email-notifier", "evt-1")
	require.NoError(t, err)
	assert.False(t, already)

	key := "ft:idempotency:evt:processed:email-notifier:evt-1"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 24*time.Hour, mr.TTL(key))

	already, err = manager.CheckAndMarkProcessed(ctx, "email-notifier", "evt-1")
	require.NoError(t, err)
	assert.True(t, already)

	already, err = manager.CheckAndMarkProcessed(ctx, "audit", "evt-1")
	require.NoError(t, err)
	assert.False(t, already, "consumers are tracked independently")
}

func TestDeleteReleasesMarker(t *testing.T) {
	manager, _ := newManager(t, time.Hour)
	ctx := context.Background()

	_, err := manager.CheckAndMarkProcessed(ctx, "email-notifier", "evt-2")
	require.NoError(t, err)
	require.NoError(t, manager.Delete(ctx, "email-notifier", "evt-2"))

	already, err := manager.CheckAndMarkProcessed(ctx, "email-notifier", "evt-2")
	require.NoError(t, err)
	assert.False(t, already)
}

func TestRejectsMissingIdentifiers(t *testing.T) {
	manager, _ := newManager(t, time.Hour)
	_, err := manager.CheckAndMarkProcessed(context.Background(), "", "evt")
	assert.Error(t, err)
	_, err = manager.CheckAndMarkProcessed(context.Background(), "email-notifier", " ")
	assert.Error(t, err)

	_, err = NewManager(nil, time.Hour)
	assert.Error(t, err)
}
