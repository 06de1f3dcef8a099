package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// NewRedisClient 创建 Redis 客户端并用 PING 检查连通性
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// StatusKey 实体最新状态的缓存键，如 "vehicle:V1:status"
func StatusKey(kind, entityID string) string {
	return fmt.Sprintf("%s:%s:status", kind, entityID)
}

// StatusChannel 状态更新的发布频道
func StatusChannel(kind string) string {
	return "telemetry:" + kind
}

// AlertChannel 车辆健康告警频道
const AlertChannel = "alerts:vehicle"

// StatusPublisher 将提交后的状态镜像到 Redis 并发布到频道
type StatusPublisher struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusPublisher 创建发布器，ttl <= 0 表示缓存键不过期
func NewStatusPublisher(client *redis.Client, ttl time.Duration) *StatusPublisher {
	return &StatusPublisher{client: client, ttl: ttl}
}

// PublishStatus 在一个 pipeline 内写入状态缓存并发布
func (p *StatusPublisher) PublishStatus(ctx context.Context, kind, entityID string, status any) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, StatusKey(kind, entityID), payload, p.ttl)
	pipe.Publish(ctx, StatusChannel(kind), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// PublishFaultAlert 发布车辆健康状态变化
func (p *StatusPublisher) PublishFaultAlert(ctx context.Context, vehicleID string, alert any) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := p.client.Publish(ctx, AlertChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish alert for %s: %w", vehicleID, err)
	}
	return nil
}

// Ping 检查连通性
func (p *StatusPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
