package ingestion_engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/docsift/internal/applog"
	"github.com/markdave123-py/docsift/internal/core"
)

// RedisLocker holds per-document ingest leases in Redis so that replicas
// sharing a database do not ingest the same document at once.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "docsift:ingest:lease:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, documentID string, ttl time.Duration) (func(), bool, error) {
	key := l.prefix + documentID
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		applog.Warn("ingest lease acquire failed", "document_id", documentID, "error", err)
		return nil, false, fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		applog.Debug("ingest lease already held", "document_id", documentID)
		return nil, false, nil
	}
	applog.Debug("ingest lease acquired", "document_id", documentID, "ttl", ttl)

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			applog.Warn("ingest lease release failed", "document_id", documentID, "error", err)
		}
	}
	return release, true, nil
}

// LocalLocker is the single-process IngestLocker.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]localLease
	now    func() time.Time
}

type localLease struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]localLease), now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, documentID string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[documentID]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.leases[documentID] = localLease{token: token, expires: now.Add(ttl)}

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.leases[documentID]; ok && cur.token == token {
			delete(l.leases, documentID)
		}
	}
	return release, true, nil
}

var (
	_ core.IngestLocker = (*RedisLocker)(nil)
	_ core.IngestLocker = (*LocalLocker)(nil)
)
