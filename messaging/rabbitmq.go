package messaging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tsukikage7/outboxkit/logger"
	"github.com/Tsukikage7/outboxkit/message"
)

// exchangeType 交换机类型.
type exchangeType string

const (
	exchangeDirect  exchangeType = "direct"
	exchangeFanout  exchangeType = "fanout"
	exchangeTopic   exchangeType = "topic"
	exchangeHeaders exchangeType = "headers"
)

// rabbitMQConnection RabbitMQ 连接管理器.
type rabbitMQConnection struct {
	url            string
	conn           *amqp.Connection
	mu             sync.RWMutex
	closed         atomic.Bool
	reconnectDelay time.Duration
	maxRetries     int
	logger         logger.Logger

	notifyClose chan *amqp.Error
	reconnectCh chan struct{}
}

func newRabbitMQConnection(url string, log logger.Logger) (*rabbitMQConnection, error) {
	c := &rabbitMQConnection{
		url:            url,
		reconnectDelay: 5 * time.Second,
		maxRetries:     -1,
		reconnectCh:    make(chan struct{}),
		logger:         log,
	}

	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateClient, err)
	}

	go c.handleReconnect()

	return c, nil
}

func (c *rabbitMQConnection) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.notifyClose = make(chan *amqp.Error, 1)
	c.conn.NotifyClose(c.notifyClose)
	c.mu.Unlock()

	c.log("RabbitMQ 连接已建立")
	return nil
}

func (c *rabbitMQConnection) handleReconnect() {
	for {
		err, ok := <-c.notifyClose
		if !ok || c.closed.Load() {
			return
		}

		c.log("RabbitMQ 连接断开: %v, 开始重连...", err)

		retries := 0
		for {
			if c.closed.Load() {
				return
			}

			if c.maxRetries > 0 && retries >= c.maxRetries {
				c.log("RabbitMQ 重连失败，已达最大重试次数")
				return
			}

			time.Sleep(c.reconnectDelay)

			if err := c.connect(); err != nil {
				retries++
				c.log("RabbitMQ 重连失败 (%d): %v", retries, err)
				continue
			}

			select {
			case c.reconnectCh <- struct{}{}:
			default:
			}
			break
		}
	}
}

func (c *rabbitMQConnection) Channel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	if c.conn == nil {
		return nil, ErrNoBrokersAvailable
	}

	return c.conn.Channel()
}

func (c *rabbitMQConnection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

func (c *rabbitMQConnection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *rabbitMQConnection) log(format string, args ...any) {
	if c.logger != nil {
		c.logger.Infof(format, args...)
	}
}

// rabbitMQProducer RabbitMQ 生产者.
//
// 默认开启持久化投递和发布确认，消息路由键取 Header.Topic.
type rabbitMQProducer struct {
	conn     *rabbitMQConnection
	channel  *amqp.Channel
	mu       sync.RWMutex
	closed   atomic.Bool
	confirms chan amqp.Confirmation

	exchange     string
	exchangeType exchangeType
	mandatory    bool
	immediate    bool
	durable      bool
	autoDelete   bool
	confirm      bool
	logger       logger.Logger
	metrics      *messagingMetrics
	tracer       *messagingTracer
}

func newRabbitMQProducer(cfg *Config, opts ...ProducerOption) (*rabbitMQProducer, error) {
	if cfg.URL == "" {
		return nil, ErrNoBrokers
	}

	options := &producerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	p := &rabbitMQProducer{
		exchange:     "",
		exchangeType: exchangeDirect,
		durable:      true,
		confirm:      true,
		logger:       options.logger,
	}

	if options.collector != nil {
		p.metrics = newMessagingMetrics(options.collector)
	}
	if options.serviceName != "" {
		p.tracer = newMessagingTracer(options.serviceName, TypeRabbitMQ)
	}

	// 应用 RabbitMQ 特定配置
	if cfg.RabbitMQ != nil {
		if cfg.RabbitMQ.Exchange != "" {
			p.exchange = cfg.RabbitMQ.Exchange
		}
		if cfg.RabbitMQ.ExchangeType != "" {
			p.exchangeType = exchangeType(cfg.RabbitMQ.ExchangeType)
		}
		p.durable = cfg.RabbitMQ.Durable
		p.confirm = cfg.RabbitMQ.Confirm
	}

	conn, err := newRabbitMQConnection(cfg.URL, options.logger)
	if err != nil {
		return nil, err
	}
	p.conn = conn

	if err := p.setupChannel(); err != nil {
		conn.Close()
		return nil, err
	}

	go p.handleReconnect()

	return p, nil
}

func (p *rabbitMQProducer) setupChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCreateProducer, err)
	}

	if p.exchange != "" {
		err = ch.ExchangeDeclare(
			p.exchange,
			string(p.exchangeType),
			p.durable,
			p.autoDelete,
			false,
			false,
			nil,
		)
		if err != nil {
			ch.Close()
			return fmt.Errorf("声明交换机失败: %w", err)
		}
	}

	if p.confirm {
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			return fmt.Errorf("启用发布确认失败: %w", err)
		}
		p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 100))
	}

	p.mu.Lock()
	p.channel = ch
	p.mu.Unlock()

	return nil
}

func (p *rabbitMQProducer) handleReconnect() {
	for range p.conn.ReconnectNotify() {
		if p.closed.Load() {
			return
		}

		p.log("检测到重连，重新创建 channel...")

		p.mu.Lock()
		if p.channel != nil {
			p.channel.Close()
		}
		p.mu.Unlock()

		if err := p.setupChannel(); err != nil {
			p.log("重建 channel 失败: %v", err)
		} else {
			p.log("channel 重建成功")
		}
	}
}

func (p *rabbitMQProducer) Send(ctx context.Context, msg *message.Message) error {
	startTime := time.Now()

	if p.closed.Load() {
		return ErrProducerClosed
	}

	if msg == nil {
		return ErrNilMessage
	}

	if msg.Header.Topic == "" {
		return ErrEmptyTopic
	}

	p.mu.RLock()
	ch := p.channel
	p.mu.RUnlock()

	if ch == nil {
		return ErrNoBrokersAvailable
	}

	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.startProducerSpan(ctx, msg.Header.Topic)
		defer span.End()
	}

	headers := wireHeaders(msg)
	if p.tracer != nil {
		headers = p.tracer.injectHeaders(ctx, headers)
	}

	contentType := msg.Body.ContentType
	if contentType == "" {
		contentType = msg.Header.ContentType
	}
	if contentType == "" {
		contentType = "application/json"
	}

	publishing := amqp.Publishing{
		ContentType:   contentType,
		Body:          msg.Body.Bytes,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		MessageId:     msg.ID,
		CorrelationId: msg.Header.CorrelationID,
		ReplyTo:       msg.Header.ReplyTo,
		Type:          string(msg.Header.MessageType),
	}

	if len(headers) > 0 {
		publishing.Headers = make(amqp.Table, len(headers))
		for k, v := range headers {
			publishing.Headers[k] = v
		}
	}

	err := ch.PublishWithContext(
		ctx,
		p.exchange,
		msg.Header.Topic,
		p.mandatory,
		p.immediate,
		publishing,
	)
	if err != nil {
		if p.tracer != nil {
			p.tracer.setError(span, err)
		}
		if p.metrics != nil {
			p.metrics.RecordSendError(msg.Header.Topic)
		}
		return fmt.Errorf("%w: %v", ErrSendMessage, err)
	}

	if p.confirm && p.confirms != nil {
		select {
		case confirm := <-p.confirms:
			if !confirm.Ack {
				if p.metrics != nil {
					p.metrics.RecordSendError(msg.Header.Topic)
				}
				return fmt.Errorf("%w: 消息被拒绝", ErrSendMessage)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if p.metrics != nil {
		p.metrics.RecordSend(msg.Header.Topic, time.Since(startTime))
	}

	return nil
}

func (p *rabbitMQProducer) SendBatch(ctx context.Context, msgs []*message.Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	failed := 0

	for _, msg := range msgs {
		if err := p.Send(ctx, msg); err != nil {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d/%d 消息发送失败", ErrBatchSend, failed, len(msgs))
	}

	return nil
}

func (p *rabbitMQProducer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}

	return p.conn.Close()
}

func (p *rabbitMQProducer) log(format string, args ...any) {
	if p.logger != nil {
		p.logger.Infof(format, args...)
	}
}
