// Package claimcheck 提供超大消息体的转存机制（claim check 模式）.
//
// 消息体超过阈值时存入外部 blob 存储，消息里只留一个引用 ID；
// 接收侧凭引用取回原始内容. 存储被视为一次性中转站：
// 取回成功后默认删除 blob，未被取回的孤儿条目由定期清理兜底.
package claimcheck

import (
	"context"
	"errors"
	"time"
)

// 预定义错误.
var (
	// ErrNotFound blob 不存在.
	ErrNotFound = errors.New("claimcheck: blob 不存在")

	// ErrEmptyID 引用 ID 为空.
	ErrEmptyID = errors.New("claimcheck: 引用 ID 为空")

	// ErrNilStore 存储实例为空.
	ErrNilStore = errors.New("claimcheck: 存储实例为空")
)

// Store 转存存储接口.
//
// 以不透明 ID 为键的 blob 存储. ID 由 Put 生成并返回.
type Store interface {
	// Put 存储 blob，返回引用 ID.
	Put(ctx context.Context, data []byte) (string, error)

	// Get 按引用 ID 读取 blob，不存在时返回 ErrNotFound.
	Get(ctx context.Context, id string) ([]byte, error)

	// Delete 删除 blob. 不存在的 ID 忽略.
	Delete(ctx context.Context, id string) error

	// Exists 检查 blob 是否存在.
	Exists(ctx context.Context, id string) (bool, error)

	// PurgeExpired 清理存放超过 olderThan 的孤儿 blob，
	// 返回清理数量. 针对从未取回转存内容的消费者兜底.
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int, error)
}
