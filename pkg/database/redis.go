package database

import (
	"context"
	"fmt"
	"time"

	"chat_sync_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NewRedisClient init redis connection, sentinel failover when sentinels are set
func NewRedisClient(ctx context.Context, c RedisConnection) (*redis.Client, error) {
	var rdb *redis.Client
	if len(c.Sentinels) > 0 {
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    c.MasterName, // 哨兵主节点名称
			SentinelAddrs: c.Sentinels,  // 哨兵地址列表
			DB:            c.DB,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr: c.Addr,
			DB:   c.DB,
		})
	}

	attempts := c.RetryCount
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		// 测试连接
		if err = rdb.Ping(ctx).Err(); err == nil {
			return rdb, nil
		}
		logger.Log.Warn(
			"Failed to connect to redis, retrying...",
			zap.Int("attempt", i+1),
			zap.String("address", fmt.Sprintf("[%s]", c.Addr)),
			zap.Strings("sentinels", c.Sentinels),
			zap.Error(err),
		)
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return nil, ctx.Err()
			case <-time.After(c.RetryInterval):
			}
		}
	}

	_ = rdb.Close()
	return nil, fmt.Errorf("failed to connect to redis: %w", err)
}
