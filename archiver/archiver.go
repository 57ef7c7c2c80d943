// Package archiver 提供发件箱归档任务.
//
// 已投递的消息累积在发件箱里只会拖慢查询. Archiver 周期性地把
// 投递超过一定时长的条目搬到归档目标（冷存储），再从发件箱删除.
//
// 搬运是破坏性操作（复制后删除），不能并发执行：两个实例竞争
// 同一批条目可能重复归档或在复制中途删除. 因此每轮运行前必须
// 通过分布式锁取得租约，拿不到就跳过本轮；租约在运行结束后释放，
// 进程崩溃未释放时等租约过期后由其他实例接管.
//
// 示例:
//
//	arch := archiver.New(store, sink, lockProvider,
//		archiver.WithMinimumAge(7*24*time.Hour),
//		archiver.WithLogger(log),
//	)
//	arch.Start()
//	defer arch.Stop()
package archiver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Tsukikage7/outboxkit/lock"
	"github.com/Tsukikage7/outboxkit/logger"
	"github.com/Tsukikage7/outboxkit/message"
	"github.com/Tsukikage7/outboxkit/outbox"
)

// 默认配置值.
const (
	DefaultInterval   = time.Hour
	DefaultMinimumAge = 24 * time.Hour
	DefaultBatchSize  = 100

	// LockResource 归档任务的锁资源名.
	LockResource = "Archiver"
)

// Provider 归档目标接口（冷存储）.
type Provider interface {
	// ArchiveMessages 归档一批消息. 返回错误时整批不从发件箱删除.
	ArchiveMessages(ctx context.Context, msgs []*message.Message) error
}

// Archiver 发件箱归档任务.
type Archiver struct {
	store      outbox.Store
	provider   Provider
	locker     lock.Provider
	interval   time.Duration
	minimumAge time.Duration
	batchSize  int
	log        logger.Logger
	now        func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Option Archiver 配置选项.
type Option func(*Archiver)

// WithInterval 设置归档间隔，默认 1h.
func WithInterval(d time.Duration) Option {
	return func(a *Archiver) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithMinimumAge 设置最小投递年龄，默认 24h.
// 只归档投递超过该时长的条目.
func WithMinimumAge(d time.Duration) Option {
	return func(a *Archiver) {
		if d > 0 {
			a.minimumAge = d
		}
	}
}

// WithBatchSize 设置单批大小，默认 100.
func WithBatchSize(n int) Option {
	return func(a *Archiver) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(a *Archiver) {
		a.log = log
	}
}

// WithClock 设置时钟函数，用于测试.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		a.now = now
	}
}

// New 创建 Archiver.
func New(store outbox.Store, provider Provider, locker lock.Provider, opts ...Option) *Archiver {
	a := &Archiver{
		store:      store,
		provider:   provider,
		locker:     locker,
		interval:   DefaultInterval,
		minimumAge: DefaultMinimumAge,
		batchSize:  DefaultBatchSize,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Start 启动后台归档. 重复调用无副作用.
func (a *Archiver) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	a.started = true

	go a.run(ctx)

	if a.log != nil {
		a.log.Infof("[Archiver] 启动: interval=%s, minimum_age=%s, batch_size=%d",
			a.interval, a.minimumAge, a.batchSize)
	}
}

// Stop 停止归档并等待当前轮结束. 重复调用无副作用.
func (a *Archiver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return
	}

	a.cancel()
	<-a.done
	a.started = false

	if a.log != nil {
		a.log.Infof("[Archiver] 已停止")
	}
}

// RunOnce 立即执行一轮归档.
//
// 取不到锁时直接返回 nil（另一实例正在归档，正常跳过）.
func (a *Archiver) RunOnce(ctx context.Context) error {
	lockID, err := a.locker.ObtainLock(ctx, LockResource)
	if err != nil {
		return fmt.Errorf("archiver: 获取锁失败: %w", err)
	}
	if lockID == "" {
		if a.log != nil {
			a.log.Debugf("[Archiver] 锁被其他实例持有，跳过本轮")
		}
		return nil
	}

	defer func() {
		// 释放失败只记日志：租约到期后自然失效
		if err := a.locker.ReleaseLock(ctx, LockResource, lockID); err != nil {
			if a.log != nil {
				a.log.Warnf("[Archiver] 释放锁失败: %v", err)
			}
		}
	}()

	return a.archive(ctx)
}

// archive 执行归档搬运：按批复制到归档目标，成功后从发件箱删除.
func (a *Archiver) archive(ctx context.Context) error {
	cutoff := a.now().Add(-a.minimumAge)
	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgs, err := a.store.DispatchedMessages(ctx, cutoff, a.batchSize)
		if err != nil {
			return fmt.Errorf("archiver: 查询已投递消息失败: %w", err)
		}
		if len(msgs) == 0 {
			break
		}

		if err := a.provider.ArchiveMessages(ctx, msgs); err != nil {
			return fmt.Errorf("archiver: 归档批次失败: %w", err)
		}

		ids := make([]string, len(msgs))
		for i, msg := range msgs {
			ids[i] = msg.ID
		}

		if err := a.store.Delete(ctx, ids...); err != nil {
			return fmt.Errorf("archiver: 删除已归档条目失败: %w", err)
		}

		total += len(msgs)

		// 不足一批说明已经搬完
		if len(msgs) < a.batchSize {
			break
		}
	}

	if total > 0 && a.log != nil {
		a.log.Infof("[Archiver] 归档 %d 条消息", total)
	}

	return nil
}

func (a *Archiver) run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 单轮失败只记日志，不中断定时循环
			if err := a.RunOnce(ctx); err != nil {
				if a.log != nil {
					a.log.Errorf("[Archiver] 本轮归档失败: %v", err)
				}
			}
		}
	}
}
