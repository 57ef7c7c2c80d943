// Package mediator 提供发件箱感知的生产者中介.
//
// Mediator 把"产生一条消息"拆成两步：Deposit 在调用方的业务事务内
// 把消息写入发件箱，Clear 在事务提交后把消息发往中间件并标记已投递.
// 两步之间进程崩溃时，消息留在发件箱里等待 Sweeper 补投，
// 因此整体交付语义是至少一次.
//
// 发送路径受重试（指数退避）和熔断器双重保护：重试吸收瞬时故障，
// 熔断器在连续失败后快速失败，避免雪崩.
//
// 示例:
//
//	med, err := mediator.New(store, producer,
//		mediator.WithTransformer(tf),
//		mediator.WithRetry(5, 100*time.Millisecond, 10*time.Second),
//		mediator.WithBreaker(3, 30*time.Second),
//	)
//
//	// 业务事务内 deposit
//	id, err := med.Deposit(outbox.WithTx(ctx, tx), msg)
//
//	// 事务提交后 clear
//	err = med.Clear(ctx, id)
package mediator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/Tsukikage7/outboxkit/claimcheck"
	"github.com/Tsukikage7/outboxkit/logger"
	"github.com/Tsukikage7/outboxkit/message"
	"github.com/Tsukikage7/outboxkit/messaging"
	"github.com/Tsukikage7/outboxkit/metrics"
	"github.com/Tsukikage7/outboxkit/outbox"
	"github.com/Tsukikage7/outboxkit/retry"
)

// 默认配置值.
const (
	DefaultRetryMaxAttempts = 3
	DefaultRetryInitialWait = 100 * time.Millisecond
	DefaultRetryMaxWait     = 10 * time.Second

	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second
)

// 预定义错误.
var (
	// ErrNilStore 发件箱存储为空.
	ErrNilStore = errors.New("mediator: 发件箱存储为空")

	// ErrNilProducer 生产者为空.
	ErrNilProducer = errors.New("mediator: 生产者为空")

	// ErrNilMessage 消息为空.
	ErrNilMessage = errors.New("mediator: 消息为空")

	// ErrNoTopic 消息未绑定主题. 配置错误，不重试，立即失败.
	ErrNoTopic = errors.New("mediator: 消息未绑定主题")

	// ErrDispatchFailed 投递失败，条目仍留在发件箱中等待补投.
	ErrDispatchFailed = errors.New("mediator: 消息投递失败")

	// ErrNoArchiver 未配置归档器.
	ErrNoArchiver = errors.New("mediator: 未配置归档器")
)

// Archiver 归档委托接口，由 archiver 包实现.
type Archiver interface {
	// RunOnce 执行一轮归档.
	RunOnce(ctx context.Context) error
}

// Mediator 发件箱感知的生产者中介.
type Mediator struct {
	store       outbox.Store
	producer    messaging.Producer
	transformer *claimcheck.Transformer
	archiver    Archiver
	breaker     *gobreaker.CircuitBreaker
	log         logger.Logger
	collector   metrics.Collector
	now         func() time.Time

	retryMaxAttempts int
	retryInitialWait time.Duration
	retryMaxWait     time.Duration
	breakerCfg       breakerSettings
}

// Option Mediator 配置选项.
type Option func(*Mediator)

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(m *Mediator) {
		m.log = log
	}
}

// WithMetrics 设置指标收集器.
func WithMetrics(collector metrics.Collector) Option {
	return func(m *Mediator) {
		m.collector = collector
	}
}

// WithTransformer 设置大消息体转存转换器.
// 未设置时消息体始终内联发送.
func WithTransformer(tf *claimcheck.Transformer) Option {
	return func(m *Mediator) {
		m.transformer = tf
	}
}

// WithArchiver 设置归档委托.
func WithArchiver(a Archiver) Option {
	return func(m *Mediator) {
		m.archiver = a
	}
}

// WithRetry 设置发送重试策略.
func WithRetry(maxAttempts int, initialWait, maxWait time.Duration) Option {
	return func(m *Mediator) {
		if maxAttempts > 0 {
			m.retryMaxAttempts = maxAttempts
		}
		if initialWait > 0 {
			m.retryInitialWait = initialWait
		}
		if maxWait > 0 {
			m.retryMaxWait = maxWait
		}
	}
}

// breakerSettings 熔断器参数，在 New 中转换为 gobreaker.Settings.
type breakerSettings struct {
	threshold uint32
	cooldown  time.Duration
}

// WithBreaker 设置熔断器：连续失败 threshold 次后熔断 cooldown 时长，
// 熔断期间 Clear 不再尝试网络调用，直接失败.
func WithBreaker(threshold uint32, cooldown time.Duration) Option {
	return func(m *Mediator) {
		if threshold > 0 {
			m.breakerCfg.threshold = threshold
		}
		if cooldown > 0 {
			m.breakerCfg.cooldown = cooldown
		}
	}
}

// WithClock 设置时钟函数，用于测试.
func WithClock(now func() time.Time) Option {
	return func(m *Mediator) {
		m.now = now
	}
}

// New 创建 Mediator.
func New(store outbox.Store, producer messaging.Producer, opts ...Option) (*Mediator, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if producer == nil {
		return nil, ErrNilProducer
	}

	m := &Mediator{
		store:            store,
		producer:         producer,
		now:              time.Now,
		retryMaxAttempts: DefaultRetryMaxAttempts,
		retryInitialWait: DefaultRetryInitialWait,
		retryMaxWait:     DefaultRetryMaxWait,
		breakerCfg: breakerSettings{
			threshold: DefaultBreakerThreshold,
			cooldown:  DefaultBreakerCooldown,
		},
	}

	for _, opt := range opts {
		opt(m)
	}

	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mediator",
		MaxRequests: 1,
		Timeout:     m.breakerCfg.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= m.breakerCfg.threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if m.log != nil {
				m.log.Warnf("[Mediator] 熔断器状态变更: %s -> %s", from, to)
			}
		},
	})

	return m, nil
}

// Deposit 把消息写入发件箱，返回消息 ID.
//
// 必须在调用方的业务事务上下文内调用（关系库实现通过
// outbox.WithTx 共享事务），保证消息与业务写入同生共死.
// 消息 ID 为空时自动分配 UUID.
func (m *Mediator) Deposit(ctx context.Context, msg *message.Message) (string, error) {
	if msg == nil {
		return "", ErrNilMessage
	}
	if msg.Header.Topic == "" {
		return "", ErrNoTopic
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	if err := m.store.Add(ctx, msg); err != nil {
		return "", fmt.Errorf("mediator: 写入发件箱失败: %w", err)
	}

	if m.collector != nil {
		m.collector.Counter("mediator_deposited_total", map[string]string{"topic": msg.Header.Topic})
	}

	return msg.ID, nil
}

// DepositAll 批量写入消息，返回按输入顺序排列的消息 ID.
//
// 任一消息校验失败立即返回，已写入的消息保留在发件箱中
// （与调用方事务一起提交或回滚）.
func (m *Mediator) DepositAll(ctx context.Context, msgs []*message.Message) ([]string, error) {
	ids := make([]string, 0, len(msgs))

	for _, msg := range msgs {
		id, err := m.Deposit(ctx, msg)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// Clear 按给定顺序投递指定消息并标记已投递.
//
// 单条消息的投递失败不阻断后续消息；全部处理完后返回
// 聚合错误（ErrDispatchFailed），失败条目留在发件箱中
// 等待 Sweeper 补投或调用方重试.
func (m *Mediator) Clear(ctx context.Context, ids ...string) error {
	var errs []error

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if err := m.clearOne(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("id=%s: %w", id, err))

			if m.log != nil {
				m.log.Errorf("[Mediator] 投递失败: id=%s, err=%v", id, err)
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(ErrDispatchFailed, errors.Join(errs...))
	}

	return nil
}

// ClearOutstanding 投递创建于 olderThan 之前的待投递消息.
//
// 返回本轮尝试投递的消息数. 年龄下限避免与仍在进行中的
// Clear 调用竞争同一条刚写入的消息.
func (m *Mediator) ClearOutstanding(ctx context.Context, olderThan time.Duration, batchSize int) (int, error) {
	cutoff := m.now().Add(-olderThan)

	msgs, err := m.store.OutstandingMessages(ctx, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("mediator: 查询待投递消息失败: %w", err)
	}

	if len(msgs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}

	if m.collector != nil {
		m.collector.Gauge("mediator_outstanding_batch_size", float64(len(ids)), nil)
	}

	return len(ids), m.Clear(ctx, ids...)
}

// Archive 委托归档器执行一轮归档.
func (m *Mediator) Archive(ctx context.Context) error {
	if m.archiver == nil {
		return ErrNoArchiver
	}
	return m.archiver.RunOnce(ctx)
}

// clearOne 投递单条消息.
func (m *Mediator) clearOne(ctx context.Context, id string) error {
	msg, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if m.transformer != nil {
		msg, err = m.transformer.Wrap(ctx, msg)
		if err != nil {
			return err
		}
	}

	start := m.now()

	// 熔断器包住整个重试周期：一轮重试耗尽计一次失败，
	// 熔断打开期间不再发起网络调用.
	_, err = m.breaker.Execute(func() (any, error) {
		return nil, retry.Do(ctx, func() error {
			return m.producer.Send(ctx, msg)
		}).
			WithMaxAttempts(m.retryMaxAttempts).
			WithBackoff(m.retryInitialWait, m.retryMaxWait).
			Run()
	})
	if err != nil {
		if m.collector != nil {
			m.collector.Counter("mediator_dispatch_errors_total", map[string]string{"topic": msg.Header.Topic})
		}
		return err
	}

	if err := m.store.MarkDispatched(ctx, []string{id}, m.now()); err != nil {
		// 发送成功但标记失败：消息仍显示为待投递，Sweeper 会重投，
		// 接受至少一次语义下的重复.
		return fmt.Errorf("mediator: 标记已投递失败: %w", err)
	}

	if m.collector != nil {
		m.collector.Counter("mediator_dispatched_total", map[string]string{"topic": msg.Header.Topic})
		m.collector.Histogram("mediator_dispatch_duration_seconds", m.now().Sub(start).Seconds(), map[string]string{"topic": msg.Header.Topic})
	}

	return nil
}
