package ingestion_engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "doc-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "doc-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	_, ok, _ = l.Acquire(ctx, "doc-2", time.Minute)
	assert.True(t, ok, "other documents are independent")

	release()
	_, ok, _ = l.Acquire(ctx, "doc-1", time.Minute)
	assert.True(t, ok)
}

func TestLocalLockerExpiry(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	staleRelease, ok, _ := l.Acquire(context.Background(), "doc-1", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = l.Acquire(context.Background(), "doc-1", time.Minute)
	require.True(t, ok, "expired lease can be taken over")

	// The expired holder must not free the new holder's lease.
	staleRelease()
	_, ok, _ = l.Acquire(context.Background(), "doc-1", time.Minute)
	assert.False(t, ok)
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client)
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "doc-1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("docsift:ingest:lease:doc-1"))
	assert.Equal(t, 30*time.Second, mr.TTL("docsift:ingest:lease:doc-1"))

	_, ok, err = l.Acquire(ctx, "doc-1", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists("docsift:ingest:lease:doc-1"))
}

func TestRedisLockerReleaseKeepsForeignLease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client)
	release, ok, err := l.Acquire(context.Background(), "doc-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = l.Acquire(context.Background(), "doc-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	release()
	assert.True(t, mr.Exists("docsift:ingest:lease:doc-1"), "stale release must not delete the new lease")
}

func TestRedisLockerUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, ok, err := NewRedisLocker(client).Acquire(context.Background(), "doc-1", time.Second)
	assert.Error(t, err)
	assert.False(t, ok)
}
