package messaging

import (
	"time"

	"github.com/Tsukikage7/outboxkit/metrics"
)

// messagingMetrics 消息队列指标记录器.
//
// 封装 metrics.PrometheusCollector，提供发送侧的指标记录方法.
type messagingMetrics struct {
	collector *metrics.PrometheusCollector
}

// newMessagingMetrics 创建消息队列指标记录器.
func newMessagingMetrics(collector *metrics.PrometheusCollector) *messagingMetrics {
	return &messagingMetrics{collector: collector}
}

// RecordSend 记录消息发送.
func (m *messagingMetrics) RecordSend(topic string, latency time.Duration) {
	labels := map[string]string{"topic": topic}
	m.collector.Counter("messaging_messages_sent_total", labels)
	m.collector.Histogram("messaging_send_duration_seconds", latency.Seconds(), labels)
}

// RecordSendError 记录发送错误.
func (m *messagingMetrics) RecordSendError(topic string) {
	m.collector.Counter("messaging_send_errors_total", map[string]string{"topic": topic})
}
