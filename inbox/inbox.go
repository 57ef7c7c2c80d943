// Package inbox 提供收件箱去重存储.
//
// 收件箱模式：记录已处理请求的标识，在重复投递时拒绝或容忍
// 再次处理. 与发件箱的 at-least-once 投递组合，
// 在处理器幂等的前提下达到"效果上恰好一次"的应用行为.
//
// 键为（请求类型，请求 ID，上下文键）三元组：同一请求在
// 不同处理上下文（如不同管道）中允许各处理一次.
package inbox

import (
	"context"
	"errors"
	"time"
)

// 预定义错误.
var (
	// ErrNotFound 请求记录不存在.
	ErrNotFound = errors.New("inbox: 请求记录不存在")

	// ErrNilRequest 请求为空.
	ErrNilRequest = errors.New("inbox: 请求为空")

	// ErrEmptyID 请求 ID 为空.
	ErrEmptyID = errors.New("inbox: 请求 ID 为空")

	// ErrOnceOnlyViolation 请求已处理过（Throw 策略）.
	ErrOnceOnlyViolation = errors.New("inbox: 请求已处理过")
)

// Request 入站请求记录.
type Request struct {
	// ID 请求唯一标识.
	ID string `json:"id"`

	// Type 请求类型名.
	Type string `json:"type"`

	// Payload 请求内容.
	Payload []byte `json:"payload,omitempty"`

	// ReceivedAt 到达时间，由存储写入时填充.
	ReceivedAt time.Time `json:"received_at"`
}

// Store 收件箱存储接口.
//
// Add 对重复键不报错（默认策略容忍重复的处理记录——
// 请求本身已经执行过）. 是否拒绝重复处理由 Guard 的策略决定.
// Exists 与 Add 的原子性由各实现保证：内存实现持锁写入，
// Redis 实现使用 SETNX，关系库实现依赖主键冲突处理.
type Store interface {
	// Exists 检查请求是否已处理.
	Exists(ctx context.Context, requestType, id, contextKey string) (bool, error)

	// Add 记录已处理的请求. 重复键静默幂等.
	Add(ctx context.Context, req *Request, contextKey string) error

	// Get 读取请求记录，不存在时返回 ErrNotFound.
	Get(ctx context.Context, requestType, id, contextKey string) (*Request, error)
}
