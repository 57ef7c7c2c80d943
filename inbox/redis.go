package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// 默认配置值.
const (
	DefaultKeyPrefix = "outboxkit:inbox:"
	DefaultEntryTTL  = 7 * 24 * time.Hour
)

// Redis 基于 Redis 的收件箱存储.
//
// 适用于分布式部署场景. Add 使用 SETNX 实现集群内原子的
// add-if-absent；条目带 TTL，过期后允许重新处理——
// 去重窗口应覆盖中间件的最大重投间隔.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
	entryTTL  time.Duration
}

// RedisOption Redis 存储配置选项.
type RedisOption func(*Redis)

// WithKeyPrefix 设置键前缀.
//
// 默认 "outboxkit:inbox:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.keyPrefix = prefix
	}
}

// WithRedisEntryTTL 设置去重记录的保留时间.
//
// 默认 7 天. 0 表示永不过期.
func WithRedisEntryTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.entryTTL = ttl
	}
}

// NewRedis 创建 Redis 收件箱存储.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	if client == nil {
		panic("inbox: 存储客户端为空")
	}

	r := &Redis{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		entryTTL:  DefaultEntryTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(requestType, id, contextKey string) string {
	return r.keyPrefix + key(requestType, id, contextKey)
}

// Exists 检查请求是否已处理.
func (r *Redis) Exists(ctx context.Context, requestType, id, contextKey string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(requestType, id, contextKey)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Add 记录已处理的请求.
//
// SETNX 保证 add-if-absent 的原子性，重复键静默幂等.
func (r *Redis) Add(ctx context.Context, req *Request, contextKey string) error {
	if req == nil {
		return ErrNilRequest
	}
	if req.ID == "" {
		return ErrEmptyID
	}

	stored := *req
	stored.ReceivedAt = time.Now()

	data, err := json.Marshal(&stored)
	if err != nil {
		return err
	}

	_, err = r.client.SetNX(ctx, r.key(req.Type, req.ID, contextKey), data, r.entryTTL).Result()
	return err
}

// Get 读取请求记录.
func (r *Redis) Get(ctx context.Context, requestType, id, contextKey string) (*Request, error) {
	data, err := r.client.Get(ctx, r.key(requestType, id, contextKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
