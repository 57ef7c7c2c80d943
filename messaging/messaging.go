// Package messaging 提供消息中间件的生产者适配.
//
// 生产者以 message.Message 为发送单元，支持 Kafka、RabbitMQ
// 以及测试用的内存实现，通过配置切换.
//
// 示例:
//
//	producer, err := messaging.NewProducer(&messaging.Config{
//		Type:    "kafka",
//		Brokers: []string{"localhost:9092"},
//	}, messaging.WithProducerLogger(log))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer producer.Close()
//
//	msg := message.New("orders", message.TypeEvent, []byte(`{"id":"123"}`))
//	msg.ID = uuid.NewString()
//	err = producer.Send(ctx, msg)
package messaging

import (
	"context"

	"github.com/Tsukikage7/outboxkit/logger"
	"github.com/Tsukikage7/outboxkit/message"
	"github.com/Tsukikage7/outboxkit/metrics"
)

// Producer 生产者接口.
type Producer interface {
	// Send 发送单条消息并等待中间件确认.
	Send(ctx context.Context, msg *message.Message) error

	// SendBatch 批量发送消息.
	SendBatch(ctx context.Context, msgs []*message.Message) error

	// Close 关闭生产者.
	Close() error
}

// ProducerOption 生产者配置选项.
type ProducerOption func(*producerOptions)

type producerOptions struct {
	logger      logger.Logger
	collector   *metrics.PrometheusCollector
	serviceName string
}

// WithProducerLogger 设置日志记录器.
func WithProducerLogger(log logger.Logger) ProducerOption {
	return func(o *producerOptions) {
		o.logger = log
	}
}

// WithProducerMetrics 设置指标收集器，记录发送量和延迟.
func WithProducerMetrics(collector *metrics.PrometheusCollector) ProducerOption {
	return func(o *producerOptions) {
		o.collector = collector
	}
}

// WithProducerTracing 启用链路追踪，serviceName 作为 tracer 名称.
// 追踪上下文随消息头传播到下游.
func WithProducerTracing(serviceName string) ProducerOption {
	return func(o *producerOptions) {
		o.serviceName = serviceName
	}
}

// NewProducer 根据配置创建生产者.
func NewProducer(cfg *Config, opts ...ProducerOption) (Producer, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	switch cfg.Type {
	case TypeKafka, "":
		return NewKafkaProducer(cfg.Brokers, opts...)
	case TypeRabbitMQ:
		return newRabbitMQProducer(cfg, opts...)
	case TypeMemory:
		return NewInMemoryProducer(), nil
	default:
		return nil, ErrUnsupportedType
	}
}
