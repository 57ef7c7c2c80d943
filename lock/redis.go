package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Tsukikage7/outboxkit/logger"
)

// 释放锁的 Lua 脚本：仅当值与 lockID 匹配时删除.
// GET 和 DEL 在脚本内原子执行，持有者不会误删他人重新获取的锁.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis 基于 Redis 的分布式锁提供者.
//
// 使用 SET NX PX 实现条件写：键不存在时写入成功即获得租约，
// 键的过期时间就是租约有效期，持有者崩溃后由 Redis 自动回收.
type Redis struct {
	client        redis.UniversalClient
	keyPrefix     string
	leaseValidity time.Duration
	logger        logger.Logger
}

// RedisOption Redis 锁配置选项.
type RedisOption func(*Redis)

// WithKeyPrefix 设置锁键前缀.
//
// 默认 "outboxkit:lock:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.keyPrefix = prefix
	}
}

// WithLeaseValidity 设置租约有效期.
//
// 默认 30s. 应大于被保护任务单轮的最长耗时.
func WithLeaseValidity(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.leaseValidity = d
		}
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = log
	}
}

// NewRedis 创建 Redis 分布式锁提供者.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	if client == nil {
		panic(ErrNilClient)
	}

	r := &Redis{
		client:        client,
		keyPrefix:     DefaultKeyPrefix,
		leaseValidity: DefaultLeaseValidity,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ObtainLock 尝试获取资源的租约.
func (r *Redis) ObtainLock(ctx context.Context, resource string) (string, error) {
	lockID := uuid.New().String()

	acquired, err := r.client.SetNX(ctx, r.keyPrefix+resource, lockID, r.leaseValidity).Result()
	if err != nil {
		return "", err
	}
	if !acquired {
		if r.logger != nil {
			r.logger.Debugf("[Lock] 资源已被其他实例持有: %s", resource)
		}
		return "", nil
	}

	if r.logger != nil {
		r.logger.Debugf("[Lock] 获取租约成功: resource=%s, lockId=%s", resource, lockID)
	}
	return lockID, nil
}

// ReleaseLock 释放锁.
func (r *Redis) ReleaseLock(ctx context.Context, resource string, lockID string) error {
	deleted, err := releaseScript.Run(ctx, r.client, []string{r.keyPrefix + resource}, lockID).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}
	return nil
}
