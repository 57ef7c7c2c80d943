package archiver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/outboxkit/lock"
	"github.com/Tsukikage7/outboxkit/message"
	"github.com/Tsukikage7/outboxkit/outbox"
)

func depositDispatched(t *testing.T, store *outbox.Memory, id string, dispatchedAt time.Time) {
	t.Helper()

	msg := message.New("orders", message.TypeEvent, []byte("payload"))
	msg.ID = id
	require.NoError(t, store.Add(context.Background(), msg))
	require.NoError(t, store.MarkDispatched(context.Background(), []string{id}, dispatchedAt))
}

func TestRunOnceArchivesOldDispatched(t *testing.T) {
	ctx := context.Background()

	// 固定时钟：投递发生在 300s 前，minimumAge 100s
	base := time.Now()
	current := base.Add(300 * time.Second)
	clock := func() time.Time { return current }

	store := outbox.NewMemory(outbox.WithClock(func() time.Time { return base }))
	sink := NewMemoryProvider()
	locker := lock.NewMemory()

	arch := New(store, sink, locker,
		WithMinimumAge(100*time.Second),
		WithClock(clock),
	)

	depositDispatched(t, store, "old", base)

	require.Equal(t, 1, store.Len())

	require.NoError(t, arch.RunOnce(ctx))

	// 条目搬入归档目标并从发件箱删除
	assert.Equal(t, 0, store.Len())
	require.Equal(t, 1, sink.Len())
	assert.Equal(t, "old", sink.Archived()[0].ID)
}

func TestRunOnceSkipsFreshAndOutstanding(t *testing.T) {
	ctx := context.Background()

	current := time.Now()
	store := outbox.NewMemory(outbox.WithClock(func() time.Time { return current }))
	sink := NewMemoryProvider()

	arch := New(store, sink, lock.NewMemory(),
		WithMinimumAge(24*time.Hour),
		WithClock(func() time.Time { return current }),
	)

	// 刚投递的条目
	depositDispatched(t, store, "fresh", current)

	// 未投递的条目
	outstanding := message.New("orders", message.TypeEvent, nil)
	outstanding.ID = "outstanding"
	require.NoError(t, store.Add(ctx, outstanding))

	require.NoError(t, arch.RunOnce(ctx))

	assert.Equal(t, 0, sink.Len())
	assert.Equal(t, 2, store.Len())
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()

	store := outbox.NewMemory()
	sink := NewMemoryProvider()
	locker := lock.NewMemory()

	depositDispatched(t, store, "old", time.Now().Add(-48*time.Hour))

	// 另一实例持有锁
	otherID, err := locker.ObtainLock(ctx, LockResource)
	require.NoError(t, err)
	require.NotEmpty(t, otherID)

	arch := New(store, sink, locker, WithMinimumAge(time.Hour))

	// 跳过本轮，不报错，不归档
	require.NoError(t, arch.RunOnce(ctx))
	assert.Equal(t, 0, sink.Len())
	assert.Equal(t, 1, store.Len())

	// 锁释放后恢复归档
	require.NoError(t, locker.ReleaseLock(ctx, LockResource, otherID))
	require.NoError(t, arch.RunOnce(ctx))
	assert.Equal(t, 1, sink.Len())
	assert.Equal(t, 0, store.Len())
}

func TestTwoArchiversMutualExclusion(t *testing.T) {
	ctx := context.Background()

	store := outbox.NewMemory()
	locker := lock.NewMemory()

	for i := 0; i < 10; i++ {
		depositDispatched(t, store, string(rune('a'+i)), time.Now().Add(-48*time.Hour))
	}

	sinkA := NewMemoryProvider()
	sinkB := NewMemoryProvider()

	archA := New(store, sinkA, locker, WithMinimumAge(time.Hour), WithBatchSize(3))
	archB := New(store, sinkB, locker, WithMinimumAge(time.Hour), WithBatchSize(3))

	// A 先拿到锁并完成整轮，B 在 A 持锁期间运行会跳过.
	// 顺序执行验证两者合计不重复归档.
	require.NoError(t, archA.RunOnce(ctx))
	require.NoError(t, archB.RunOnce(ctx))

	assert.Equal(t, 10, sinkA.Len()+sinkB.Len())
	assert.Equal(t, 0, store.Len())
}

func TestArchiveFailureKeepsEntries(t *testing.T) {
	ctx := context.Background()

	store := outbox.NewMemory()
	sink := NewMemoryProvider()
	sink.FailWith(errors.New("cold storage down"))

	arch := New(store, sink, lock.NewMemory(), WithMinimumAge(time.Hour))

	depositDispatched(t, store, "old", time.Now().Add(-48*time.Hour))

	err := arch.RunOnce(ctx)
	require.Error(t, err)

	// 归档失败时条目保留在发件箱中，下一轮重试
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 0, sink.Len())

	sink.FailWith(nil)
	require.NoError(t, arch.RunOnce(ctx))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1, sink.Len())
}

func TestStartStop(t *testing.T) {
	store := outbox.NewMemory()
	arch := New(store, NewMemoryProvider(), lock.NewMemory(), WithInterval(time.Hour))

	arch.Start()
	arch.Start()
	arch.Stop()
	arch.Stop()
}
