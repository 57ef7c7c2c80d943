package inbox

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	req := &Request{ID: "req-1", Type: "CreateOrder", Payload: []byte(`{"id":1}`)}

	t.Run("exists before add", func(t *testing.T) {
		exists, err := store.Exists(ctx, "CreateOrder", "req-1", "pipeline-a")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if exists {
			t.Error("expected not exists")
		}
	})

	t.Run("add and get", func(t *testing.T) {
		if err := store.Add(ctx, req, "pipeline-a"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := store.Get(ctx, "CreateOrder", "req-1", "pipeline-a")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got.Payload) != `{"id":1}` {
			t.Errorf("unexpected payload: %s", got.Payload)
		}
		if got.ReceivedAt.IsZero() {
			t.Error("expected ReceivedAt to be set")
		}
	})

	t.Run("duplicate add is silent", func(t *testing.T) {
		first, _ := store.Get(ctx, "CreateOrder", "req-1", "pipeline-a")

		time.Sleep(time.Millisecond)
		if err := store.Add(ctx, req, "pipeline-a"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		second, _ := store.Get(ctx, "CreateOrder", "req-1", "pipeline-a")
		if !second.ReceivedAt.Equal(first.ReceivedAt) {
			t.Error("duplicate add must not overwrite the original record")
		}
	})

	t.Run("context key isolates pipelines", func(t *testing.T) {
		exists, err := store.Exists(ctx, "CreateOrder", "req-1", "pipeline-b")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if exists {
			t.Error("same request in another context must not collide")
		}
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "CreateOrder", "missing", "pipeline-a")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		if err := store.Add(ctx, nil, "pipeline-a"); err != ErrNilRequest {
			t.Errorf("expected ErrNilRequest, got %v", err)
		}
		if err := store.Add(ctx, &Request{Type: "X"}, "pipeline-a"); err != ErrEmptyID {
			t.Errorf("expected ErrEmptyID, got %v", err)
		}
	})
}

func TestMemoryStoreEntryTTL(t *testing.T) {
	ctx := context.Background()
	current := time.Now()
	store := NewMemory(
		WithEntryTTL(time.Hour),
		WithClock(func() time.Time { return current }),
	)
	defer store.Close()

	if err := store.Add(ctx, &Request{ID: "old", Type: "CreateOrder"}, "p"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current = current.Add(30 * time.Minute)
	if err := store.Add(ctx, &Request{ID: "fresh", Type: "CreateOrder"}, "p"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 只有超过保留时间的记录被清理
	current = current.Add(45 * time.Minute)
	store.doCleanup()

	if exists, _ := store.Exists(ctx, "CreateOrder", "old", "p"); exists {
		t.Error("expected expired record to be removed")
	}
	if exists, _ := store.Exists(ctx, "CreateOrder", "fresh", "p"); !exists {
		t.Error("expected fresh record to survive")
	}
	if got := store.Len(); got != 1 {
		t.Errorf("expected 1 record, got %d", got)
	}
}
