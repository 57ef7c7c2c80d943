package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingMediator 记录每次补投调用.
type recordingMediator struct {
	mu       sync.Mutex
	calls    int
	lastAge  time.Duration
	lastSize int
	err      error
}

func (m *recordingMediator) ClearOutstanding(_ context.Context, olderThan time.Duration, batchSize int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastAge = olderThan
	m.lastSize = batchSize

	if m.err != nil {
		return 0, m.err
	}
	return 1, nil
}

func (m *recordingMediator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestRunOnce(t *testing.T) {
	med := &recordingMediator{}
	sw := New(med, WithMinimumAge(time.Minute), WithBatchSize(50))

	n, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, time.Minute, med.lastAge)
	assert.Equal(t, 50, med.lastSize)
}

func TestStartStop(t *testing.T) {
	med := &recordingMediator{}
	sw := New(med, WithInterval(10*time.Millisecond))

	sw.Start()

	// 至少跑两轮
	deadline := time.After(time.Second)
	for med.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	sw.Stop()
	calls := med.callCount()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, med.callCount(), "no runs after Stop")

	// 重复 Stop 安全
	sw.Stop()
}

func TestIterationErrorDoesNotStopLoop(t *testing.T) {
	med := &recordingMediator{err: errors.New("store down")}
	sw := New(med, WithInterval(10*time.Millisecond))

	sw.Start()
	defer sw.Stop()

	deadline := time.After(time.Second)
	for med.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatal("sweeper stopped after iteration error")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartIdempotent(t *testing.T) {
	med := &recordingMediator{}
	sw := New(med, WithInterval(time.Hour))

	sw.Start()
	sw.Start()
	sw.Stop()
}
