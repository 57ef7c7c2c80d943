// Package logger 提供结构化日志记录功能.
//
// 工具包内所有组件通过 Logger 接口输出日志，默认实现基于 zap.
// 组件接受 nil logger，此时日志静默丢弃.
package logger

import "errors"

// 日志级别常量.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// 输出格式常量.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// 常见错误.
var (
	// ErrInvalidLevel 无效的日志级别.
	ErrInvalidLevel = errors.New("logger: 无效的日志级别")

	// ErrInvalidFormat 无效的输出格式.
	ErrInvalidFormat = errors.New("logger: 无效的输出格式")
)

// Field 表示一个日志字段.
type Field struct {
	Key   string
	Value any
}

// F 构造日志字段.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger 日志记录器接口.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)

	// With 返回附加了固定字段的子 logger.
	With(fields ...Field) Logger

	// Sync 刷新缓冲的日志.
	Sync() error
}

// Config 日志配置.
type Config struct {
	// Level 日志级别: debug、info（默认）、warn、error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format 输出格式: json（默认）、console.
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// ServiceName 服务名，作为固定字段附加到每条日志.
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
}

// Validate 验证配置.
func (c *Config) Validate() error {
	switch c.Level {
	case "", LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return ErrInvalidLevel
	}
	switch c.Format {
	case "", FormatJSON, FormatConsole:
	default:
		return ErrInvalidFormat
	}
	return nil
}

// New 创建 logger 实例.
func New(config *Config) (Logger, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newZapLogger(config)
}

// MustNew 创建 logger 实例，失败时 panic.
func MustNew(config *Config) Logger {
	log, err := New(config)
	if err != nil {
		panic(err)
	}
	return log
}
