package cache

import (
	"context"
	"time"

	"DeadOrNot/storage/redis"
)

// 通过 SetNX 实现的简单分布式锁，防止多个 worker 重复投递同一条消息
const (
	lockPrefix = "lock"
)

func TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	fullKey := redis.Key(lockPrefix, key)
	return redis.Client().SetNX(ctx, fullKey, 1, ttl).Result()
}

func Unlock(ctx context.Context, key string) error {
	return redis.Client().Del(ctx, redis.Key(lockPrefix, key)).Err()
}
