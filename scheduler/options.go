package scheduler

import (
	"time"

	"github.com/Tsukikage7/outboxkit/lock"
	"github.com/Tsukikage7/outboxkit/logger"
)

// Option 调度器配置选项.
type Option func(*options)

// options 调度器内部配置.
type options struct {
	logger         logger.Logger
	locker         lock.Provider
	lockPrefix     string
	hooks          *Hooks
	defaultTimeout time.Duration
	withSeconds    bool
	location       *time.Location
}

// defaultOptions 返回默认配置.
func defaultOptions() *options {
	return &options{
		lockPrefix:     "scheduler:",
		defaultTimeout: 5 * time.Minute,
		withSeconds:    true,
		location:       time.Local,
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithLocker 设置分布式锁.
//
// 用于分布式任务调度，确保同一任务在多实例间只有一个实例执行.
// 需要配合 Job.Distributed 使用. 租约时长在锁提供方上配置，
// 应大于任务最大执行时间.
//
// 示例:
//
//	locker := lock.NewRedis(client, lock.WithLeaseValidity(10*time.Minute))
//	s := scheduler.MustNew(scheduler.WithLocker(locker))
func WithLocker(l lock.Provider) Option {
	return func(o *options) {
		o.locker = l
	}
}

// WithLockPrefix 设置分布式锁资源名前缀，默认 "scheduler:".
func WithLockPrefix(prefix string) Option {
	return func(o *options) {
		o.lockPrefix = prefix
	}
}

// WithHooks 设置全局钩子.
//
// 对所有任务生效.
func WithHooks(hooks *Hooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithDefaultTimeout 设置默认任务超时时间.
//
// 如果任务未指定超时时间，将使用此值.
// 默认: 5 分钟.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) {
		o.defaultTimeout = d
	}
}

// WithSeconds 设置是否支持秒级调度.
//
// 启用后，Cron 表达式格式为: 秒 分 时 日 月 周
// 禁用后，Cron 表达式格式为: 分 时 日 月 周
// 默认: 启用.
func WithSeconds(enabled bool) Option {
	return func(o *options) {
		o.withSeconds = enabled
	}
}

// WithLocation 设置时区.
//
// 默认: time.Local
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}
