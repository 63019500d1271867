package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"splitpay/internal/config"

	"github.com/go-redis/redis/v8"
)

// InitRedis 创建 Redis 客户端并检查连通性
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return client, nil
}

// ============================================================================
// Webhook 去重
// ============================================================================
//
// 网关会重复推送同一个事件（超时重试、手动重发）。
// 以请求体的 SHA-256 作为去重键，事件处理成功后才写入，
// 处理失败的事件下次推送时仍会被重新处理。
//
// 去重只是减少重复工作，重复事件即使漏过去重，账本写入本身也是幂等的。

const webhookSeenPrefix = "webhook:seen:"

type WebhookDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewWebhookDeduper(client *redis.Client, ttl time.Duration) *WebhookDeduper {
	return &WebhookDeduper{client: client, ttl: ttl}
}

// Key 根据原始请求体计算去重键
func Key(body []byte) string {
	sum := sha256.Sum256(body)
	return webhookSeenPrefix + hex.EncodeToString(sum[:])
}

// Seen 事件是否已处理过
func (d *WebhookDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark 标记事件已处理；ttl 为 0 时不过期
func (d *WebhookDeduper) Mark(ctx context.Context, key string) error {
	return d.client.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), d.ttl).Err()
}
