package messaging

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/Tsukikage7/outboxkit/message"
)

func TestInMemoryProducer(t *testing.T) {
	ctx := context.Background()

	t.Run("send and record", func(t *testing.T) {
		p := NewInMemoryProducer()

		msg := message.New("orders", message.TypeEvent, []byte(`{"id":"1"}`))
		msg.ID = "msg-1"

		if err := p.Send(ctx, msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if p.Len() != 1 {
			t.Fatalf("expected 1 message, got %d", p.Len())
		}

		sent := p.SentTo("orders")
		if len(sent) != 1 || sent[0].ID != "msg-1" {
			t.Errorf("unexpected sent messages: %+v", sent)
		}

		// 记录的是副本，修改原消息不影响记录
		msg.Body.Bytes[0] = 'X'
		if string(p.Sent()[0].Body.Bytes) != `{"id":"1"}` {
			t.Error("expected recorded message to be a copy")
		}
	})

	t.Run("injected error", func(t *testing.T) {
		p := NewInMemoryProducer()
		sendErr := errors.New("broker down")
		p.FailWith(sendErr)

		msg := message.New("orders", message.TypeEvent, nil)
		if err := p.Send(ctx, msg); !errors.Is(err, sendErr) {
			t.Errorf("expected injected error, got %v", err)
		}
		if p.Len() != 0 {
			t.Error("failed send must not be recorded")
		}

		p.FailWith(nil)
		if err := p.Send(ctx, msg); err != nil {
			t.Errorf("unexpected error after recovery: %v", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		p := NewInMemoryProducer()

		if err := p.Send(ctx, nil); !errors.Is(err, ErrNilMessage) {
			t.Errorf("expected ErrNilMessage, got %v", err)
		}

		if err := p.Send(ctx, &message.Message{}); !errors.Is(err, ErrEmptyTopic) {
			t.Errorf("expected ErrEmptyTopic, got %v", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		p := NewInMemoryProducer()
		_ = p.Close()

		msg := message.New("orders", message.TypeEvent, nil)
		if err := p.Send(ctx, msg); !errors.Is(err, ErrProducerClosed) {
			t.Errorf("expected ErrProducerClosed, got %v", err)
		}
	})
}

func TestNewProducer(t *testing.T) {
	t.Run("memory type", func(t *testing.T) {
		p, err := NewProducer(&Config{Type: TypeMemory})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := p.(*InMemoryProducer); !ok {
			t.Errorf("expected InMemoryProducer, got %T", p)
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := NewProducer(&Config{Type: "pigeon"})
		if !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("expected ErrUnsupportedType, got %v", err)
		}
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewProducer(nil)
		if !errors.Is(err, ErrNilConfig) {
			t.Errorf("expected ErrNilConfig, got %v", err)
		}
	})

	t.Run("kafka without brokers", func(t *testing.T) {
		_, err := NewProducer(&Config{Type: TypeKafka})
		if !errors.Is(err, ErrNoBrokers) {
			t.Errorf("expected ErrNoBrokers, got %v", err)
		}
	})

	t.Run("rabbitmq without url", func(t *testing.T) {
		_, err := NewProducer(&Config{Type: TypeRabbitMQ})
		if !errors.Is(err, ErrNoBrokers) {
			t.Errorf("expected ErrNoBrokers, got %v", err)
		}
	})
}

func TestWireHeaders(t *testing.T) {
	msg := message.New("orders", message.TypeEvent, []byte("body"))
	msg.ID = "msg-1"
	msg.Header.CorrelationID = "corr-1"
	msg.Header.HandledCount = 2
	msg.Header.PartitionKey = "order-9"
	msg.Header.DataRef = "claim-1"
	msg.SetBagItem("tenant", "acme")

	headers := wireHeaders(msg)

	want := map[string]string{
		HeaderMessageID:     "msg-1",
		HeaderMessageType:   string(message.TypeEvent),
		HeaderCorrelationID: "corr-1",
		HeaderHandledCount:  strconv.Itoa(2),
		HeaderPartitionKey:  "order-9",
		HeaderDataRef:       "claim-1",
		"tenant":            "acme",
	}
	for k, v := range want {
		if headers[k] != v {
			t.Errorf("header %s = %q, want %q", k, headers[k], v)
		}
	}

	if headers[HeaderTimestamp] == "" {
		t.Error("expected timestamp header")
	}
}

func TestPartitionKey(t *testing.T) {
	msg := message.New("orders", message.TypeEvent, nil)
	msg.ID = "msg-1"

	if got := partitionKey(msg); got != "msg-1" {
		t.Errorf("expected fallback to message id, got %q", got)
	}

	msg.Header.PartitionKey = "order-9"
	if got := partitionKey(msg); got != "order-9" {
		t.Errorf("expected partition key, got %q", got)
	}
}

func TestKafkaProducerValidation(t *testing.T) {
	ctx := context.Background()

	p := &KafkaProducer{}

	t.Run("nil message", func(t *testing.T) {
		if err := p.Send(ctx, nil); !errors.Is(err, ErrNilMessage) {
			t.Errorf("expected ErrNilMessage, got %v", err)
		}
	})

	t.Run("empty topic", func(t *testing.T) {
		if err := p.Send(ctx, &message.Message{}); !errors.Is(err, ErrEmptyTopic) {
			t.Errorf("expected ErrEmptyTopic, got %v", err)
		}
	})

	t.Run("context canceled", func(t *testing.T) {
		canceledCtx, cancel := context.WithCancel(ctx)
		cancel()

		msg := message.New("orders", message.TypeEvent, nil)
		if err := p.Send(canceledCtx, msg); err == nil {
			t.Error("expected error for canceled context")
		}
	})

	t.Run("producer closed", func(t *testing.T) {
		closed := &KafkaProducer{closed: true}
		msg := message.New("orders", message.TypeEvent, nil)
		if err := closed.Send(ctx, msg); !errors.Is(err, ErrProducerClosed) {
			t.Errorf("expected ErrProducerClosed, got %v", err)
		}
	})
}

func TestKafkaProducerClose(t *testing.T) {
	p := &KafkaProducer{}

	if err := p.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !p.closed {
		t.Error("expected producer to be closed")
	}

	// 重复关闭应该是安全的
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error on second close: %v", err)
	}
}
