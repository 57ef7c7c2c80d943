// Package lock 提供基于租约的分布式锁.
//
// 锁以命名资源为粒度，带 TTL 租约：持有者崩溃后租约自动过期，
// 其他实例可重新获取，无需人工清理.
//
// 获取必须是存储端的单次条件写（compare-and-swap），
// 禁止先读后写，避免两个实例同时通过检查.
//
// 示例:
//
//	provider := lock.NewRedis(client, lock.WithLeaseValidity(30*time.Second))
//
//	lockID, err := provider.ObtainLock(ctx, "Archiver")
//	if err != nil {
//	    return err
//	}
//	if lockID == "" {
//	    return nil // 其他实例持有锁，跳过本轮
//	}
//	defer provider.ReleaseLock(ctx, "Archiver", lockID)
package lock

import (
	"context"
	"errors"
	"time"
)

// 默认配置值.
const (
	DefaultLeaseValidity = 30 * time.Second
	DefaultKeyPrefix     = "outboxkit:lock:"
)

// 预定义错误.
var (
	// ErrLockNotHeld 释放时锁不存在或已被他人持有.
	ErrLockNotHeld = errors.New("lock: lock not held")

	// ErrNilClient 存储客户端为空.
	ErrNilClient = errors.New("lock: 存储客户端为空")
)

// Provider 分布式锁提供者.
//
// ObtainLock 返回的 lockID 为空字符串且 err 为 nil 时，
// 表示锁被其他实例持有——这是正常的"跳过本轮"结果，不是错误.
type Provider interface {
	// ObtainLock 尝试获取资源的租约.
	// 成功返回锁 ID；资源已被持有且租约未过期时返回 ("", nil).
	ObtainLock(ctx context.Context, resource string) (string, error)

	// ReleaseLock 释放锁.
	// 仅当 lockID 与当前持有者匹配时删除租约，
	// 不匹配（过期后被他人重新获取）时返回 ErrLockNotHeld.
	ReleaseLock(ctx context.Context, resource string, lockID string) error
}
