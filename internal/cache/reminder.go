package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"DeadOrNot/storage/redis"
)

const (
	reminderActivePrefix   = "reminder:active"
	messageProcessedPrefix = "message:processed"

	processingTTL = 5 * time.Minute
	processedTTL  = 48 * time.Hour
	// activeSlack 激活标记比触发时间多保留一段，兼容消费端延迟
	activeSlack = 24 * time.Hour
)

// 仅当值仍是自己的消息 ID 时才删除，避免删掉后来重新挂起的标记
var compareAndDelete = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SetActiveReminder 记录某个提醒标识当前有效的消息 ID，旧消息到达时据此跳过
func SetActiveReminder(ctx context.Context, identifier, messageID string, fireAt time.Time) error {
	ttl := time.Until(fireAt) + activeSlack
	if ttl < activeSlack {
		ttl = activeSlack
	}

	key := redis.Key(reminderActivePrefix, identifier)
	if err := redis.Client().Set(ctx, key, messageID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set active reminder: %w", err)
	}
	return nil
}

// GetActiveReminder 返回当前有效的消息 ID，不存在时返回空串
func GetActiveReminder(ctx context.Context, identifier string) (string, error) {
	id, err := redis.Client().Get(ctx, redis.Key(reminderActivePrefix, identifier)).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active reminder: %w", err)
	}
	return id, nil
}

// ClearActiveReminder 取消提醒，已在队列中的消息会在消费时被跳过
func ClearActiveReminder(ctx context.Context, identifier string) error {
	if err := redis.Client().Del(ctx, redis.Key(reminderActivePrefix, identifier)).Err(); err != nil {
		return fmt.Errorf("failed to clear active reminder: %w", err)
	}
	return nil
}

// CompleteActiveReminder 投递完成后清除标记，返回是否删除成功
func CompleteActiveReminder(ctx context.Context, identifier, messageID string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, redis.Client(),
		[]string{redis.Key(reminderActivePrefix, identifier)}, messageID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to complete active reminder: %w", err)
	}
	return n == 1, nil
}

// TryMarkMessageProcessing 抢占消息处理权
func TryMarkMessageProcessing(ctx context.Context, messageID string) (bool, error) {
	processed, err := redis.Client().Exists(ctx, redis.Key(messageProcessedPrefix, messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check message processed: %w", err)
	}
	if processed > 0 {
		return false, nil
	}

	return TryLock(ctx, "message:"+messageID, processingTTL)
}

// UnmarkMessageProcessing 投递失败时释放处理权，允许重试
func UnmarkMessageProcessing(ctx context.Context, messageID string) error {
	return Unlock(ctx, "message:"+messageID)
}

// MarkMessageProcessed 记录已成功投递的消息
func MarkMessageProcessed(ctx context.Context, messageID string) error {
	key := redis.Key(messageProcessedPrefix, messageID)
	if err := redis.Client().Set(ctx, key, "1", processedTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return Unlock(ctx, "message:"+messageID)
}
