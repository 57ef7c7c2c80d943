package inbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardFirstDelivery(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(NewMemory(), "pipeline-a")

	calls := 0
	req := &Request{ID: "req-1", Type: "CreateOrder"}

	require.NoError(t, guard.Handle(ctx, req, func(ctx context.Context, r *Request) error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)

	// 处理成功后已入收件箱
	exists, err := guard.store.Exists(ctx, "CreateOrder", "req-1", "pipeline-a")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGuardThrowPolicy(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(NewMemory(), "pipeline-a", WithAction(ActionThrow))

	req := &Request{ID: "req-1", Type: "CreateOrder"}
	calls := 0
	next := func(ctx context.Context, r *Request) error {
		calls++
		return nil
	}

	require.NoError(t, guard.Handle(ctx, req, next))

	err := guard.Handle(ctx, req, next)
	assert.ErrorIs(t, err, ErrOnceOnlyViolation)
	assert.Equal(t, 1, calls, "重复投递不得再次处理")
}

func TestGuardWarnPolicy(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(NewMemory(), "pipeline-a", WithAction(ActionWarn))

	req := &Request{ID: "req-1", Type: "CreateOrder"}
	calls := 0
	next := func(ctx context.Context, r *Request) error {
		calls++
		return nil
	}

	require.NoError(t, guard.Handle(ctx, req, next))
	require.NoError(t, guard.Handle(ctx, req, next), "warn 策略静默短路")
	assert.Equal(t, 1, calls)
}

func TestGuardAllowDuplicatePolicy(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(NewMemory(), "pipeline-a", WithAction(ActionAllowDuplicate))

	req := &Request{ID: "req-1", Type: "CreateOrder"}
	calls := 0
	next := func(ctx context.Context, r *Request) error {
		calls++
		return nil
	}

	require.NoError(t, guard.Handle(ctx, req, next))
	require.NoError(t, guard.Handle(ctx, req, next))
	assert.Equal(t, 2, calls)
}

func TestGuardHandlerFailure(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(NewMemory(), "pipeline-a")

	req := &Request{ID: "req-1", Type: "CreateOrder"}
	failure := errors.New("handler failure")

	err := guard.Handle(ctx, req, func(ctx context.Context, r *Request) error {
		return failure
	})
	require.ErrorIs(t, err, failure)

	// 处理失败不记录，重投后可以再次处理
	exists, err := guard.store.Exists(ctx, "CreateOrder", "req-1", "pipeline-a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestParseOnceOnlyAction(t *testing.T) {
	assert.Equal(t, ActionWarn, ParseOnceOnlyAction("warn"))
	assert.Equal(t, ActionAllowDuplicate, ParseOnceOnlyAction("allow_duplicate"))
	assert.Equal(t, ActionThrow, ParseOnceOnlyAction("throw"))
	assert.Equal(t, ActionThrow, ParseOnceOnlyAction("bogus"))
}
