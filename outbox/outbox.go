// Package outbox 提供事务性发件箱存储.
//
// 发件箱模式的核心：消息作为业务状态变更的副作用，
// 与业务写入在同一个事务内落库；事务提交则消息必达，
// 事务回滚则消息随之消失. 投递由独立的清理步骤完成.
//
// 提供三种实现：内存（测试/单机）、GORM（关系库）、MongoDB（文档库）.
// 按配置选择实现，各实现是独立适配器，不共享基类.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/Tsukikage7/outboxkit/message"
)

// 预定义错误.
//
// 所有错误均可通过 errors.Is 进行判断.
var (
	// ErrNotFound 消息不存在.
	ErrNotFound = errors.New("outbox: 消息不存在")

	// ErrNilMessage 消息为空.
	ErrNilMessage = errors.New("outbox: 消息为空")

	// ErrEmptyID 消息 ID 为空.
	ErrEmptyID = errors.New("outbox: 消息 ID 为空")

	// ErrDuplicate 消息 ID 已存在.
	// 默认的 Add 实现静默幂等，不返回该错误；
	// 保留此哨兵供需要显式感知重复的调用方使用.
	ErrDuplicate = errors.New("outbox: 消息已存在")
)

// Entry 发件箱条目：消息加投递元数据.
//
// DispatchedAt 为 nil 表示尚未投递（outstanding）.
type Entry struct {
	Message      *message.Message
	CreatedAt    time.Time
	DispatchedAt *time.Time
}

// Outstanding 条目是否待投递.
func (e *Entry) Outstanding() bool {
	return e.DispatchedAt == nil
}

// Store 发件箱存储接口.
//
// 实现必须保证：
//   - Add 对重复 ID 幂等（不报错、不产生重复行）；
//   - Add 可参与调用方的数据库事务（关系库实现通过
//     事务上下文共享，见 WithTx）；
//   - OutstandingMessages 按创建时间从旧到新返回；
//   - MarkDispatched 幂等，重复标记同一条目无副作用.
type Store interface {
	// Add 写入消息. 重复 ID 静默幂等.
	Add(ctx context.Context, msg *message.Message) error

	// Get 按 ID 读取消息，不存在时返回 ErrNotFound.
	Get(ctx context.Context, id string) (*message.Message, error)

	// OutstandingMessages 返回创建于 olderThan 之前且未投递的消息，
	// 按创建时间从旧到新排列，最多 limit 条. limit <= 0 表示不限制.
	OutstandingMessages(ctx context.Context, olderThan time.Time, limit int) ([]*message.Message, error)

	// DispatchedMessages 返回投递于 olderThan 之前的消息，
	// 按投递时间从旧到新排列，最多 limit 条. 供归档任务使用.
	DispatchedMessages(ctx context.Context, olderThan time.Time, limit int) ([]*message.Message, error)

	// MarkDispatched 将指定条目标记为已投递.
	MarkDispatched(ctx context.Context, ids []string, dispatchedAt time.Time) error

	// Delete 删除条目. 不存在的 ID 忽略.
	Delete(ctx context.Context, ids ...string) error
}
