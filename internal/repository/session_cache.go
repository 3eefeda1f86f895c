package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkin-companion/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
)

// snapshotTTL 覆盖一个完整的日历日
const snapshotTTL = 36 * time.Hour

// SessionCache 保存参与者句柄的最新快照，以及已注销的 token 黑名单。
type SessionCache interface {
	// LoadSnapshot 读取快照；不存在时返回 nil, nil。
	LoadSnapshot(ctx context.Context, studyID string) (*model.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
	DeleteSnapshot(ctx context.Context, studyID string) error
	RevokeToken(ctx context.Context, token string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, token string) (bool, error)
}

type redisSessionCache struct {
	redisClient *redis.Client
}

// NewRedisSessionCache 创建一个基于 Redis 的 SessionCache 实例。
func NewRedisSessionCache(redisClient *redis.Client) SessionCache {
	return &redisSessionCache{redisClient: redisClient}
}

func snapshotKey(studyID string) string {
	return fmt.Sprintf("checkin:snapshot:%s", studyID)
}

func blacklistKey(token string) string {
	return "blacklist:" + token
}

// LoadSnapshot 从 Redis 获取快照。
func (c *redisSessionCache) LoadSnapshot(ctx context.Context, studyID string) (*model.Snapshot, error) {
	jsonData, err := c.redisClient.Get(ctx, snapshotKey(studyID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(jsonData), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSnapshot 在 Redis 中写入快照。
func (c *redisSessionCache) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := c.redisClient.Set(ctx, snapshotKey(snap.StudyID), jsonData, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot 删除快照。
func (c *redisSessionCache) DeleteSnapshot(ctx context.Context, studyID string) error {
	if err := c.redisClient.Del(ctx, snapshotKey(studyID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// RevokeToken 将 token 存入黑名单，token 的剩余有效期作为过期时间。
func (c *redisSessionCache) RevokeToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.redisClient.Set(ctx, blacklistKey(token), "true", ttl).Err()
}

// IsTokenRevoked 检查 token 是否在黑名单中。
func (c *redisSessionCache) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	n, err := c.redisClient.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return n > 0, nil
}

// memorySessionCache 是未配置 Redis 时使用的进程内实现。
// 快照以 JSON 字节保存，读取方拿到的总是独立副本。
type memorySessionCache struct {
	cache *cache.Cache
}

// NewMemorySessionCache 创建一个进程内的 SessionCache 实例。
func NewMemorySessionCache() SessionCache {
	// 过期条目每 10 分钟清理一次
	return &memorySessionCache{cache: cache.New(snapshotTTL, 10*time.Minute)}
}

func (c *memorySessionCache) LoadSnapshot(_ context.Context, studyID string) (*model.Snapshot, error) {
	x, ok := c.cache.Get(snapshotKey(studyID))
	if !ok {
		return nil, nil
	}
	var snap model.Snapshot
	if err := json.Unmarshal(x.([]byte), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (c *memorySessionCache) SaveSnapshot(_ context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	c.cache.Set(snapshotKey(snap.StudyID), data, cache.DefaultExpiration)
	return nil
}

func (c *memorySessionCache) DeleteSnapshot(_ context.Context, studyID string) error {
	c.cache.Delete(snapshotKey(studyID))
	return nil
}

func (c *memorySessionCache) RevokeToken(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.cache.Set(blacklistKey(token), true, ttl)
	return nil
}

func (c *memorySessionCache) IsTokenRevoked(_ context.Context, token string) (bool, error) {
	_, ok := c.cache.Get(blacklistKey(token))
	return ok, nil
}
