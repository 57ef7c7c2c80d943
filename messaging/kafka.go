package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tsukikage7/outboxkit/logger"
	"github.com/Tsukikage7/outboxkit/message"
)

// KafkaProducer Kafka 生产者.
//
// 使用同步发送模式，保证消息可靠投递.
// 内置最佳实践配置：
//   - Idempotent: true (幂等性，保证消息不重复)
//   - RequiredAcks: WaitForAll (等待所有副本确认)
//   - Retry.Max: 3 (最多重试3次)
//   - Compression: Snappy (使用Snappy压缩)
//
// 示例:
//
//	producer, err := NewKafkaProducer(
//	    []string{"localhost:9092"},
//	    WithProducerLogger(log),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer producer.Close()
//
//	err = producer.Send(ctx, msg)
type KafkaProducer struct {
	producer sarama.SyncProducer
	closed   bool
	mu       sync.RWMutex
	logger   logger.Logger
	metrics  *messagingMetrics
	tracer   *messagingTracer
}

// NewKafkaProducer 创建 Kafka 生产者.
//
// 参数:
//   - brokers: Kafka 服务器地址列表
//   - opts: 可选配置项
//
// 返回创建的生产者实例，使用完毕后需调用 Close 关闭.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) (*KafkaProducer, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	options := &producerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	config := sarama.NewConfig()
	config.Version = sarama.V3_8_0_0
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, errors.Join(ErrCreateProducer, err)
	}

	p := &KafkaProducer{
		producer: producer,
		logger:   options.logger,
	}

	if options.collector != nil {
		p.metrics = newMessagingMetrics(options.collector)
	}
	if options.serviceName != "" {
		p.tracer = newMessagingTracer(options.serviceName, TypeKafka)
	}

	if p.logger != nil {
		p.logger.Debugf("[Messaging] Kafka生产者启动: brokers=%v", brokers)
	}

	return p, nil
}

// Send 发送消息.
//
// 同步发送并等待所有副本确认.
//
// 参数:
//   - ctx: 上下文，用于取消操作
//   - msg: 要发送的消息，Header.Topic 必填
func (p *KafkaProducer) Send(ctx context.Context, msg *message.Message) error {
	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrProducerClosed
	}

	if msg == nil {
		return ErrNilMessage
	}
	if msg.Header.Topic == "" {
		return ErrEmptyTopic
	}

	// Tracing: 开始 span
	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.startProducerSpan(ctx, msg.Header.Topic)
		defer span.End()
	}

	saramaMsg := p.buildSaramaMessage(ctx, msg)

	if _, _, err := p.producer.SendMessage(saramaMsg); err != nil {
		// Tracing: 记录错误
		if p.tracer != nil {
			p.tracer.setError(span, err)
		}
		// Metrics: 记录错误
		if p.metrics != nil {
			p.metrics.RecordSendError(msg.Header.Topic)
		}
		return errors.Join(ErrSendMessage, err)
	}

	// Metrics: 记录成功发送
	if p.metrics != nil {
		p.metrics.RecordSend(msg.Header.Topic, time.Since(startTime))
	}

	return nil
}

// SendBatch 批量发送消息.
//
// 一次性发送多条消息，提高吞吐量.
// 注意：批量发送是原子操作，要么全部成功，要么全部失败.
func (p *KafkaProducer) SendBatch(ctx context.Context, msgs []*message.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrProducerClosed
	}

	saramaMsgs := make([]*sarama.ProducerMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if msg.Header.Topic == "" {
			return ErrEmptyTopic
		}
		saramaMsgs = append(saramaMsgs, p.buildSaramaMessage(ctx, msg))
	}

	if err := p.producer.SendMessages(saramaMsgs); err != nil {
		// Metrics: 记录错误
		if p.metrics != nil {
			for _, msg := range msgs {
				if msg != nil {
					p.metrics.RecordSendError(msg.Header.Topic)
				}
			}
		}
		return errors.Join(ErrBatchSend, err)
	}

	// Metrics: 记录成功发送
	if p.metrics != nil {
		for _, msg := range msgs {
			if msg != nil {
				p.metrics.RecordSend(msg.Header.Topic, time.Since(startTime)/time.Duration(len(msgs)))
			}
		}
	}

	return nil
}

// buildSaramaMessage 构建 sarama 消息.
func (p *KafkaProducer) buildSaramaMessage(ctx context.Context, msg *message.Message) *sarama.ProducerMessage {
	headers := wireHeaders(msg)
	if p.tracer != nil {
		headers = p.tracer.injectHeaders(ctx, headers)
	}

	saramaMsg := &sarama.ProducerMessage{
		Topic:     msg.Header.Topic,
		Key:       sarama.StringEncoder(partitionKey(msg)),
		Value:     sarama.ByteEncoder(msg.Body.Bytes),
		Timestamp: time.Now(),
	}
	for k, v := range headers {
		saramaMsg.Headers = append(saramaMsg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return saramaMsg
}

// Close 关闭生产者.
//
// 关闭与 Kafka 的连接，释放资源.
// 关闭后不能再发送消息，重复调用是安全的.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
