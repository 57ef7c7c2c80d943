// Package retry 提供带指数退避的重试机制.
//
// 使用示例:
//
//	err := retry.Do(ctx, func() error {
//	    return producer.Send(ctx, msg)
//	}).WithMaxAttempts(5).WithBackoff(100*time.Millisecond, 10*time.Second).Run()
package retry

import (
	"context"
	"errors"
	"time"
)

// 默认配置值.
const (
	DefaultMaxAttempts = 3
	DefaultInitialWait = 100 * time.Millisecond
	DefaultMaxWait     = 10 * time.Second
	DefaultMultiplier  = 2.0
)

// ErrMaxAttempts 重试次数耗尽.
var ErrMaxAttempts = errors.New("retry: 已达到最大重试次数")

// Retry 重试器.
type Retry struct {
	ctx         context.Context
	fn          func() error
	maxAttempts int
	initialWait time.Duration
	maxWait     time.Duration
	multiplier  float64

	lastErr error
}

// Do 创建重试器.
func Do(ctx context.Context, fn func() error) *Retry {
	return &Retry{
		ctx:         ctx,
		fn:          fn,
		maxAttempts: DefaultMaxAttempts,
		initialWait: DefaultInitialWait,
		maxWait:     DefaultMaxWait,
		multiplier:  DefaultMultiplier,
	}
}

// WithMaxAttempts 设置最大尝试次数（含首次执行）.
func (r *Retry) WithMaxAttempts(n int) *Retry {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

// WithBackoff 设置退避区间.
//
// 等待时间从 initial 开始按倍率递增，封顶 max.
func (r *Retry) WithBackoff(initial, max time.Duration) *Retry {
	if initial > 0 {
		r.initialWait = initial
	}
	if max > 0 {
		r.maxWait = max
	}
	return r
}

// WithMultiplier 设置退避倍率，默认 2.0.
func (r *Retry) WithMultiplier(m float64) *Retry {
	if m > 1 {
		r.multiplier = m
	}
	return r
}

// Run 执行重试.
//
// 返回 nil 表示某次执行成功；重试耗尽时返回 ErrMaxAttempts
// 和最后一次执行错误的组合，可用 errors.Is 分别判断.
func (r *Retry) Run() error {
	wait := r.initialWait

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if err := r.ctx.Err(); err != nil {
			return err
		}

		err := r.fn()
		if err == nil {
			return nil
		}
		r.lastErr = err

		if attempt == r.maxAttempts-1 {
			break
		}

		select {
		case <-time.After(wait):
		case <-r.ctx.Done():
			return r.ctx.Err()
		}

		wait = time.Duration(float64(wait) * r.multiplier)
		if wait > r.maxWait {
			wait = r.maxWait
		}
	}

	return errors.Join(ErrMaxAttempts, r.lastErr)
}
