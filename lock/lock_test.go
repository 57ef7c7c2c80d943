package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryObtainAndRelease(t *testing.T) {
	ctx := context.Background()
	provider := NewMemory()

	lockID, err := provider.ObtainLock(ctx, "Archiver")
	require.NoError(t, err)
	require.NotEmpty(t, lockID)

	// 已被持有时返回空 ID，不是错误
	second, err := provider.ObtainLock(ctx, "Archiver")
	require.NoError(t, err)
	assert.Empty(t, second)

	// 不同的资源互不影响
	other, err := provider.ObtainLock(ctx, "Sweeper")
	require.NoError(t, err)
	assert.NotEmpty(t, other)

	require.NoError(t, provider.ReleaseLock(ctx, "Archiver", lockID))

	third, err := provider.ObtainLock(ctx, "Archiver")
	require.NoError(t, err)
	assert.NotEmpty(t, third)
}

func TestMemoryLeaseExpiry(t *testing.T) {
	ctx := context.Background()

	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	provider := NewMemory(WithClock(clock), WithMemoryLeaseValidity(10*time.Second))

	// 模拟持有者崩溃：获取后从不释放
	lockID, err := provider.ObtainLock(ctx, "Archiver")
	require.NoError(t, err)
	require.NotEmpty(t, lockID)

	// 租约未到期前无法获取
	advance(9 * time.Second)
	blocked, err := provider.ObtainLock(ctx, "Archiver")
	require.NoError(t, err)
	assert.Empty(t, blocked)

	// 到期后第二个获取者成功
	advance(2 * time.Second)
	recovered, err := provider.ObtainLock(ctx, "Archiver")
	require.NoError(t, err)
	assert.NotEmpty(t, recovered)

	// 原持有者此时释放会失败，且不影响新租约
	assert.ErrorIs(t, provider.ReleaseLock(ctx, "Archiver", lockID), ErrLockNotHeld)

	blocked, err = provider.ObtainLock(ctx, "Archiver")
	require.NoError(t, err)
	assert.Empty(t, blocked)
}

func TestMemoryReleaseWrongID(t *testing.T) {
	ctx := context.Background()
	provider := NewMemory()

	_, err := provider.ObtainLock(ctx, "Archiver")
	require.NoError(t, err)

	assert.ErrorIs(t, provider.ReleaseLock(ctx, "Archiver", "not-the-owner"), ErrLockNotHeld)
	assert.ErrorIs(t, provider.ReleaseLock(ctx, "missing", "any"), ErrLockNotHeld)
}

func TestMemoryConcurrentObtain(t *testing.T) {
	ctx := context.Background()
	provider := NewMemory()

	const workers = 32
	var wg sync.WaitGroup
	var acquired sync.Map

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lockID, err := provider.ObtainLock(ctx, "Archiver")
			if err == nil && lockID != "" {
				acquired.Store(lockID, true)
			}
		}()
	}
	wg.Wait()

	count := 0
	acquired.Range(func(_, _ any) bool {
		count++
		return true
	})
	assert.Equal(t, 1, count, "恰好一个实例获得租约")
}
