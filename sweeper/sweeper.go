// Package sweeper 提供发件箱补投任务.
//
// Sweeper 周期性查找已写入发件箱但一直未投递的消息
// （常见原因：进程在 deposit 和 clear 之间崩溃），
// 交给 Mediator 重新投递. 多个进程同时运行 Sweeper 是安全的：
// 标记已投递是幂等操作，竞态导致的重复发送在至少一次语义下可接受，
// 因此 Sweeper 不需要分布式锁.
//
// 示例:
//
//	sw := sweeper.New(med,
//		sweeper.WithInterval(5*time.Second),
//		sweeper.WithMinimumAge(30*time.Second),
//		sweeper.WithLogger(log),
//	)
//	sw.Start()
//	defer sw.Stop()
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/Tsukikage7/outboxkit/logger"
)

// 默认配置值.
const (
	DefaultInterval   = 5 * time.Second
	DefaultMinimumAge = 30 * time.Second
	DefaultBatchSize  = 100
)

// Mediator 补投委托接口，由 mediator 包实现.
type Mediator interface {
	// ClearOutstanding 投递创建超过 olderThan 的待投递消息.
	ClearOutstanding(ctx context.Context, olderThan time.Duration, batchSize int) (int, error)
}

// Sweeper 发件箱补投任务.
type Sweeper struct {
	mediator   Mediator
	interval   time.Duration
	minimumAge time.Duration
	batchSize  int
	timeout    time.Duration
	log        logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Option Sweeper 配置选项.
type Option func(*Sweeper)

// WithInterval 设置扫描间隔，默认 5s.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMinimumAge 设置最小消息年龄，默认 30s.
// 避免与仍在进行中的 Clear 调用竞争刚写入的消息.
func WithMinimumAge(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.minimumAge = d
		}
	}
}

// WithBatchSize 设置单轮批量大小，默认 100.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithIterationTimeout 设置单轮执行超时. 默认不超时.
func WithIterationTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		s.timeout = d
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(s *Sweeper) {
		s.log = log
	}
}

// New 创建 Sweeper.
func New(med Mediator, opts ...Option) *Sweeper {
	s := &Sweeper{
		mediator:   med,
		interval:   DefaultInterval,
		minimumAge: DefaultMinimumAge,
		batchSize:  DefaultBatchSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start 启动后台扫描. 重复调用无副作用.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.run(ctx)

	if s.log != nil {
		s.log.Infof("[Sweeper] 启动: interval=%s, minimum_age=%s, batch_size=%d",
			s.interval, s.minimumAge, s.batchSize)
	}
}

// Stop 停止扫描并等待当前轮结束. 重复调用无副作用.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.cancel()
	<-s.done
	s.started = false

	if s.log != nil {
		s.log.Infof("[Sweeper] 已停止")
	}
}

// RunOnce 立即执行一轮补投，返回本轮尝试投递的消息数.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return s.mediator.ClearOutstanding(ctx, s.minimumAge, s.batchSize)
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 单轮失败只记日志，不中断定时循环
			n, err := s.RunOnce(ctx)
			if err != nil {
				if s.log != nil {
					s.log.Errorf("[Sweeper] 本轮补投失败: %v", err)
				}
				continue
			}
			if n > 0 && s.log != nil {
				s.log.Infof("[Sweeper] 补投 %d 条消息", n)
			}
		}
	}
}
