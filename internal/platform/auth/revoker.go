package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker keeps the set of tokens that were logged out or belong to a
// person who lost access. Entries only need to live until the token expires.
type Revoker interface {
	Track(ctx context.Context, personID int64, jti string, exp time.Time) error
	Revoke(ctx context.Context, jti string, exp time.Time) error
	RevokeAll(ctx context.Context, personID int64) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type RedisRevoker struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisRevoker(rdb *redis.Client) *RedisRevoker {
	return &RedisRevoker{rdb: rdb, now: time.Now}
}

func revokedKey(jti string) string     { return fmt.Sprintf("lending:revoked:%s", jti) }
func personTokensKey(id int64) string  { return fmt.Sprintf("lending:person_tokens:%d", id) }
func tokenExpiryKey(jti string) string { return fmt.Sprintf("lending:token_exp:%s", jti) }

func (r *RedisRevoker) Track(ctx context.Context, personID int64, jti string, exp time.Time) error {
	ttl := exp.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, personTokensKey(personID), jti)
	pipe.Expire(ctx, personTokensKey(personID), ttl)
	pipe.Set(ctx, tokenExpiryKey(jti), exp.Unix(), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisRevoker) Revoke(ctx context.Context, jti string, exp time.Time) error {
	ttl := exp.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, revokedKey(jti), 1, ttl).Err()
}

func (r *RedisRevoker) RevokeAll(ctx context.Context, personID int64) error {
	jtis, err := r.rdb.SMembers(ctx, personTokensKey(personID)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	for _, jti := range jtis {
		unix, err := r.rdb.Get(ctx, tokenExpiryKey(jti)).Int64()
		if err == redis.Nil {
			continue // already expired
		}
		if err != nil {
			return err
		}
		if err := r.Revoke(ctx, jti, time.Unix(unix, 0)); err != nil {
			return err
		}
	}
	return r.rdb.Del(ctx, personTokensKey(personID)).Err()
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevoker is the single-process fallback used when no Redis is
// configured.
type MemoryRevoker struct {
	mu      sync.Mutex
	now     func() time.Time
	revoked map[string]time.Time
	issued  map[int64]map[string]time.Time
}

func NewMemoryRevoker(now func() time.Time) *MemoryRevoker {
	return &MemoryRevoker{
		now:     now,
		revoked: make(map[string]time.Time),
		issued:  make(map[int64]map[string]time.Time),
	}
}

func (m *MemoryRevoker) Track(_ context.Context, personID int64, jti string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issued[personID] == nil {
		m.issued[personID] = make(map[string]time.Time)
	}
	m.issued[personID][jti] = exp
	return nil
}

func (m *MemoryRevoker) Revoke(_ context.Context, jti string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = exp
	m.gc()
	return nil
}

func (m *MemoryRevoker) RevokeAll(_ context.Context, personID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for jti, exp := range m.issued[personID] {
		m.revoked[jti] = exp
	}
	delete(m.issued, personID)
	m.gc()
	return nil
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.revoked[jti]
	return ok && m.now().Before(exp), nil
}

// gc drops entries whose token has expired anyway. Caller holds mu.
func (m *MemoryRevoker) gc() {
	now := m.now()
	for jti, exp := range m.revoked {
		if !now.Before(exp) {
			delete(m.revoked, jti)
		}
	}
	for id, set := range m.issued {
		for jti, exp := range set {
			if !now.Before(exp) {
				delete(set, jti)
			}
		}
		if len(set) == 0 {
			delete(m.issued, id)
		}
	}
}
