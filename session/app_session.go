package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNoSession = errors.New("session not found")

// AdminSessionStore 管理后台会话（Redis），所有会话 id 另存一个集合便于全部撤销
type AdminSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewAdminSessionStore(rdb *redis.Client, ttl time.Duration) *AdminSessionStore {
	return &AdminSessionStore{rdb: rdb, ttl: ttl, now: time.Now}
}

type AdminSession struct {
	RemoteAddr string `json:"addr"`
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
}

const allSessionsKey = "admin:sessions"

func key(id string) string { return fmt.Sprintf("admin:sess:%s", id) }

func (s *AdminSessionStore) TTL() time.Duration { return s.ttl }

func (s *AdminSessionStore) Create(ctx context.Context, id, remoteAddr string) error {
	now := s.now()
	b, _ := json.Marshal(AdminSession{
		RemoteAddr: remoteAddr,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(s.ttl).Unix(),
	})
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(id), b, s.ttl)
	pipe.SAdd(ctx, allSessionsKey, id)
	pipe.Expire(ctx, allSessionsKey, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *AdminSessionStore) Get(ctx context.Context, id string) (*AdminSession, error) {
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var as AdminSession
	if err := json.Unmarshal(b, &as); err != nil {
		return nil, err
	}
	return &as, nil
}

// Touch 滑动过期：重新写入并延长 TTL
func (s *AdminSessionStore) Touch(ctx context.Context, id string) error {
	as, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	as.ExpiresAt = s.now().Add(s.ttl).Unix()
	b, _ := json.Marshal(as)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(id), b, s.ttl)
	pipe.Expire(ctx, allSessionsKey, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *AdminSessionStore) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key(id))
	pipe.SRem(ctx, allSessionsKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// RevokeAll 撤销所有管理会话（例如在任一终端选择“退出全部”）
func (s *AdminSessionStore) RevokeAll(ctx context.Context) (int, error) {
	ids, err := s.rdb.SMembers(ctx, allSessionsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}

	pipe := s.rdb.TxPipeline()
	for _, sid := range ids {
		pipe.Del(ctx, key(sid))
	}
	pipe.Del(ctx, allSessionsKey)
	_, err = pipe.Exec(ctx)
	return len(ids), err
}
