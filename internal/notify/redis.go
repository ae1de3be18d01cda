package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"realtime-chat/internal/models"
)

const DefaultMailQueueKey = "chat:mail:queue"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient connects and pings within three seconds.
func NewRedisClient(ctx context.Context, c RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisQueue pushes mail jobs onto a Redis list consumed by the mail worker.
type RedisQueue struct {
	client        listPusher
	key           string
	previewLength int
}

func NewRedisQueue(client listPusher, key string, previewLength int) *RedisQueue {
	if key == "" {
		key = DefaultMailQueueKey
	}
	return &RedisQueue{client: client, key: key, previewLength: previewLength}
}

func (q *RedisQueue) Notify(ctx context.Context, recipient, sender models.Identity, summary Summary) error {
	job := NewMailJob(Build(recipient, sender, summary, q.previewLength))
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal mail job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue mail for %s: %w", recipient.Email, err)
	}
	return nil
}
