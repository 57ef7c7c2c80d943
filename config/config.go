// Package config 提供配置加载和管理功能.
//
// 通过 viper 支持 yaml/json/toml 等格式与环境变量覆盖，
// Load[T] 按文件扩展名自动识别类型：
//
//	cfg, err := config.Load[config.Config]("outboxkit.yaml",
//	    config.WithEnvPrefix("OUTBOX"),
//	)
package config

import (
	"path/filepath"
	"strings"
)

// Validatable 可验证的配置接口.
type Validatable interface {
	Validate() error
}

// GetConfigType 根据文件扩展名获取配置类型.
func GetConfigType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	case ".ini":
		return "ini"
	case ".env":
		return "env"
	case ".properties":
		return "properties"
	default:
		return ""
	}
}
