package config

import (
	"fmt"
	"time"

	"github.com/Tsukikage7/outboxkit/claimcheck"
	"github.com/Tsukikage7/outboxkit/database"
	"github.com/Tsukikage7/outboxkit/logger"
	"github.com/Tsukikage7/outboxkit/messaging"
	"github.com/Tsukikage7/outboxkit/metrics"
)

// Config 顶层配置，覆盖发件箱子系统的全部可调项.
//
// 各子配置为空时使用对应包的默认值，时长字段支持 "5s"、"1h" 写法：
//
//	sweeper:
//	  interval: 5s
//	  minimum_age: 30s
//	breaker:
//	  failure_threshold: 5
//	  cooldown: 30s
type Config struct {
	// Logger 日志配置
	Logger *logger.Config `json:"logger" yaml:"logger" mapstructure:"logger"`

	// Database 关系库存储配置（outbox/inbox 的 GORM 后端）
	Database *database.Config `json:"database" yaml:"database" mapstructure:"database"`

	// Messaging 消息生产者配置
	Messaging *messaging.Config `json:"messaging" yaml:"messaging" mapstructure:"messaging"`

	// Metrics 指标配置
	Metrics *metrics.Config `json:"metrics" yaml:"metrics" mapstructure:"metrics"`

	// Sweeper 补发扫描配置
	Sweeper SweeperConfig `json:"sweeper" yaml:"sweeper" mapstructure:"sweeper"`

	// Archiver 归档配置
	Archiver ArchiverConfig `json:"archiver" yaml:"archiver" mapstructure:"archiver"`

	// Lock 分布式锁配置
	Lock LockConfig `json:"lock" yaml:"lock" mapstructure:"lock"`

	// ClaimCheck 大报文外置存储配置
	ClaimCheck ClaimCheckConfig `json:"claim_check" yaml:"claim_check" mapstructure:"claim_check"`

	// Retry 发送重试配置
	Retry RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`

	// Breaker 熔断配置
	Breaker BreakerConfig `json:"breaker" yaml:"breaker" mapstructure:"breaker"`

	// Inbox 收件箱去重配置
	Inbox InboxConfig `json:"inbox" yaml:"inbox" mapstructure:"inbox"`
}

// SweeperConfig 补发扫描配置.
type SweeperConfig struct {
	// Interval 扫描周期
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// MinimumAge 消息最小滞留时间，早于该时间的未发送消息才会被补发
	MinimumAge time.Duration `json:"minimum_age" yaml:"minimum_age" mapstructure:"minimum_age"`

	// BatchSize 单轮最大补发条数
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
}

// ArchiverConfig 归档配置.
type ArchiverConfig struct {
	// Interval 归档周期
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// MinimumAge 已发送消息的最小留存时间
	MinimumAge time.Duration `json:"minimum_age" yaml:"minimum_age" mapstructure:"minimum_age"`

	// BatchSize 单批归档条数
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
}

// LockConfig 分布式锁配置.
type LockConfig struct {
	// LeaseValidity 租约有效期，持有者崩溃后锁在此时间后自动失效
	LeaseValidity time.Duration `json:"lease_validity" yaml:"lease_validity" mapstructure:"lease_validity"`

	// KeyPrefix 锁键前缀
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
}

// ClaimCheckConfig 大报文外置存储配置.
type ClaimCheckConfig struct {
	// Threshold 报文体超过该字节数时外置存储，0 使用默认值
	Threshold int `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// RetainPayload 取回后是否保留外置副本（多消费者场景）
	RetainPayload bool `json:"retain_payload" yaml:"retain_payload" mapstructure:"retain_payload"`

	// S3 对象存储后端配置，为空时使用内存存储
	S3 *claimcheck.S3Config `json:"s3" yaml:"s3" mapstructure:"s3"`
}

// RetryConfig 发送重试配置.
type RetryConfig struct {
	// MaxAttempts 最大尝试次数（含首次）
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// InitialWait 首次重试等待时间
	InitialWait time.Duration `json:"initial_wait" yaml:"initial_wait" mapstructure:"initial_wait"`

	// MaxWait 重试等待时间上限
	MaxWait time.Duration `json:"max_wait" yaml:"max_wait" mapstructure:"max_wait"`
}

// BreakerConfig 熔断配置.
type BreakerConfig struct {
	// FailureThreshold 连续失败多少轮后熔断
	FailureThreshold uint32 `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// Cooldown 熔断冷却时间
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown" mapstructure:"cooldown"`
}

// InboxConfig 收件箱去重配置.
type InboxConfig struct {
	// Action 重复请求策略：throw、warn、allow_duplicate
	// 取值传给 inbox.ParseOnceOnlyAction
	Action string `json:"action" yaml:"action" mapstructure:"action"`

	// ContextKey 去重上下文键，同一请求在不同上下文中独立去重
	ContextKey string `json:"context_key" yaml:"context_key" mapstructure:"context_key"`
}

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.Sweeper.Interval == 0 {
		c.Sweeper.Interval = 5 * time.Second
	}
	if c.Sweeper.MinimumAge == 0 {
		c.Sweeper.MinimumAge = 30 * time.Second
	}
	if c.Sweeper.BatchSize == 0 {
		c.Sweeper.BatchSize = 100
	}
	if c.Archiver.Interval == 0 {
		c.Archiver.Interval = time.Hour
	}
	if c.Archiver.MinimumAge == 0 {
		c.Archiver.MinimumAge = 24 * time.Hour
	}
	if c.Archiver.BatchSize == 0 {
		c.Archiver.BatchSize = 100
	}
	if c.Lock.LeaseValidity == 0 {
		c.Lock.LeaseValidity = 30 * time.Second
	}
	if c.ClaimCheck.Threshold == 0 {
		c.ClaimCheck.Threshold = claimcheck.DefaultThreshold
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialWait == 0 {
		c.Retry.InitialWait = 100 * time.Millisecond
	}
	if c.Retry.MaxWait == 0 {
		c.Retry.MaxWait = 10 * time.Second
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = 30 * time.Second
	}
	if c.Inbox.Action == "" {
		c.Inbox.Action = "throw"
	}
	if c.ClaimCheck.S3 != nil {
		c.ClaimCheck.S3.ApplyDefaults()
	}
	if c.Database != nil {
		c.Database.ApplyDefaults()
	}
}

// Validate 验证配置.
//
// Load 解析后自动调用（实现 Validatable 接口）.
func (c *Config) Validate() error {
	c.ApplyDefaults()

	if c.Sweeper.Interval < 0 || c.Sweeper.MinimumAge < 0 || c.Sweeper.BatchSize < 0 {
		return fmt.Errorf("sweeper 配置不能为负数")
	}
	if c.Archiver.Interval < 0 || c.Archiver.MinimumAge < 0 || c.Archiver.BatchSize < 0 {
		return fmt.Errorf("archiver 配置不能为负数")
	}
	if c.Lock.LeaseValidity < 0 {
		return fmt.Errorf("lock.lease_validity 不能为负数")
	}
	if c.ClaimCheck.Threshold < 0 {
		return fmt.Errorf("claim_check.threshold 不能为负数")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts 至少为 1")
	}
	if c.Retry.InitialWait < 0 || c.Retry.MaxWait < 0 {
		return fmt.Errorf("retry 等待时间不能为负数")
	}
	if c.Breaker.Cooldown < 0 {
		return fmt.Errorf("breaker.cooldown 不能为负数")
	}
	switch c.Inbox.Action {
	case "throw", "warn", "allow_duplicate":
	default:
		return fmt.Errorf("inbox.action 必须为 throw、warn 或 allow_duplicate: %q", c.Inbox.Action)
	}

	if c.Logger != nil {
		if err := c.Logger.Validate(); err != nil {
			return err
		}
	}
	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return err
		}
	}
	if c.ClaimCheck.S3 != nil {
		if err := c.ClaimCheck.S3.Validate(); err != nil {
			return err
		}
	}
	return nil
}
