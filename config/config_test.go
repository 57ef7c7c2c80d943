package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite 配置测试套件.
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) SetupSuite() {
	tempDir, err := os.MkdirTemp("", "config_test")
	s.Require().NoError(err)
	s.tempDir = tempDir
}

func (s *ConfigTestSuite) TearDownSuite() {
	os.RemoveAll(s.tempDir)
}

// ValidatableConfig 实现 Validatable 接口的配置.
type ValidatableConfig struct {
	Topic     string `mapstructure:"topic"`
	BatchSize int    `mapstructure:"batch_size"`
}

func (c *ValidatableConfig) Validate() error {
	if c.Topic == "" {
		return errors.New("topic 不能为空")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch_size 必须为正数")
	}
	return nil
}

func (s *ConfigTestSuite) createFile(name, content string) string {
	path := filepath.Join(s.tempDir, name)
	err := os.WriteFile(path, []byte(content), 0644)
	s.Require().NoError(err)
	return path
}

// === Load 测试 ===

func (s *ConfigTestSuite) TestLoad_YAML() {
	content := `
sweeper:
  interval: 10s
  minimum_age: 1m
  batch_size: 50
archiver:
  interval: 2h
  minimum_age: 48h
lock:
  lease_validity: 15s
  key_prefix: "orders:"
claim_check:
  threshold: 1048576
  retain_payload: true
retry:
  max_attempts: 5
  initial_wait: 200ms
breaker:
  failure_threshold: 3
  cooldown: 1m
inbox:
  action: warn
`
	path := s.createFile("outboxkit.yaml", content)

	cfg, err := Load[Config](path)
	s.NoError(err)
	s.Require().NotNil(cfg)
	s.Equal(10*time.Second, cfg.Sweeper.Interval)
	s.Equal(time.Minute, cfg.Sweeper.MinimumAge)
	s.Equal(50, cfg.Sweeper.BatchSize)
	s.Equal(2*time.Hour, cfg.Archiver.Interval)
	s.Equal(48*time.Hour, cfg.Archiver.MinimumAge)
	s.Equal(15*time.Second, cfg.Lock.LeaseValidity)
	s.Equal("orders:", cfg.Lock.KeyPrefix)
	s.Equal(1048576, cfg.ClaimCheck.Threshold)
	s.True(cfg.ClaimCheck.RetainPayload)
	s.Equal(5, cfg.Retry.MaxAttempts)
	s.Equal(200*time.Millisecond, cfg.Retry.InitialWait)
	s.Equal(uint32(3), cfg.Breaker.FailureThreshold)
	s.Equal(time.Minute, cfg.Breaker.Cooldown)
	s.Equal("warn", cfg.Inbox.Action)

	// 未出现的字段取默认值
	s.Equal(100, cfg.Archiver.BatchSize)
	s.Equal(10*time.Second, cfg.Retry.MaxWait)
}

func (s *ConfigTestSuite) TestLoad_JSON() {
	content := `{
  "sweeper": {"interval": "3s", "batch_size": 20},
  "messaging": {"type": "kafka", "brokers": ["localhost:9092"]}
}`
	path := s.createFile("outboxkit.json", content)

	cfg, err := Load[Config](path)
	s.NoError(err)
	s.Equal(3*time.Second, cfg.Sweeper.Interval)
	s.Equal(20, cfg.Sweeper.BatchSize)
	s.Require().NotNil(cfg.Messaging)
	s.Equal("kafka", cfg.Messaging.Type)
	s.Equal([]string{"localhost:9092"}, cfg.Messaging.Brokers)
}

func (s *ConfigTestSuite) TestLoad_FileNotFound() {
	_, err := Load[Config]("/nonexistent/outboxkit.yaml")
	s.ErrorIs(err, ErrFileNotFound)
}

func (s *ConfigTestSuite) TestLoad_InvalidYAML() {
	path := s.createFile("invalid.yaml", `invalid: yaml: content: [}`)

	_, err := Load[Config](path)
	s.ErrorIs(err, ErrReadConfig)
}

func (s *ConfigTestSuite) TestLoad_WithDefaults() {
	path := s.createFile("partial.yaml", "sweeper:\n  interval: 7s\n")

	defaults := map[string]any{
		"sweeper.batch_size": 10,
		"inbox.action":       "allow_duplicate",
	}

	cfg, err := Load[Config](path, WithDefaults(defaults))
	s.NoError(err)
	s.Equal(7*time.Second, cfg.Sweeper.Interval)
	s.Equal(10, cfg.Sweeper.BatchSize)
	s.Equal("allow_duplicate", cfg.Inbox.Action)
}

func (s *ConfigTestSuite) TestLoad_WithValidation_Success() {
	path := s.createFile("valid.yaml", "topic: orders\nbatch_size: 100\n")

	cfg, err := Load[ValidatableConfig](path)
	s.NoError(err)
	s.Equal("orders", cfg.Topic)
	s.Equal(100, cfg.BatchSize)
}

func (s *ConfigTestSuite) TestLoad_WithValidation_Failure() {
	path := s.createFile("invalid_topic.yaml", "topic: \"\"\nbatch_size: 100\n")

	_, err := Load[ValidatableConfig](path)
	s.ErrorIs(err, ErrValidation)
}

func (s *ConfigTestSuite) TestLoad_KitValidation_Failure() {
	path := s.createFile("bad_action.yaml", "inbox:\n  action: explode\n")

	_, err := Load[Config](path)
	s.ErrorIs(err, ErrValidation)
	s.Contains(err.Error(), "inbox.action")
}

// === MustLoad 测试 ===

func (s *ConfigTestSuite) TestMustLoad_Success() {
	path := s.createFile("must.yaml", "sweeper:\n  interval: 5s\n")

	s.NotPanics(func() {
		cfg := MustLoad[Config](path)
		s.Equal(5*time.Second, cfg.Sweeper.Interval)
	})
}

func (s *ConfigTestSuite) TestMustLoad_Panic() {
	s.Panics(func() {
		MustLoad[Config]("/nonexistent/file.yaml")
	})
}

// === LoadFromBytes 测试 ===

func (s *ConfigTestSuite) TestLoadFromBytes_YAML() {
	data := []byte("retry:\n  max_attempts: 7\n")

	cfg, err := LoadFromBytes[Config](data, "yaml")
	s.NoError(err)
	s.Equal(7, cfg.Retry.MaxAttempts)
}

func (s *ConfigTestSuite) TestLoadFromBytes_JSON() {
	data := []byte(`{"breaker": {"failure_threshold": 9}}`)

	cfg, err := LoadFromBytes[Config](data, "json")
	s.NoError(err)
	s.Equal(uint32(9), cfg.Breaker.FailureThreshold)
}

func (s *ConfigTestSuite) TestLoadFromBytes_WithValidation_Failure() {
	data := []byte("topic: \"\"\nbatch_size: 1")

	_, err := LoadFromBytes[ValidatableConfig](data, "yaml")
	s.ErrorIs(err, ErrValidation)
}

func (s *ConfigTestSuite) TestLoadFromBytes_InvalidFormat() {
	_, err := LoadFromBytes[Config]([]byte(`invalid yaml: [}`), "yaml")
	s.Error(err)
}

// === LoadWithSearch 测试 ===

func (s *ConfigTestSuite) TestLoadWithSearch_Found() {
	s.createFile("outbox.yaml", "sweeper:\n  batch_size: 33\n")

	cfg, err := LoadWithSearch[Config]("outbox", []string{s.tempDir})
	s.NoError(err)
	s.Equal(33, cfg.Sweeper.BatchSize)
}

func (s *ConfigTestSuite) TestLoadWithSearch_NotFound() {
	_, err := LoadWithSearch[Config]("nonexistent", []string{s.tempDir})
	s.Error(err)
}

func (s *ConfigTestSuite) TestLoadWithSearch_MultipleSearchPaths() {
	subDir := filepath.Join(s.tempDir, "subdir")
	s.Require().NoError(os.MkdirAll(subDir, 0755))

	err := os.WriteFile(filepath.Join(subDir, "outbox.yaml"),
		[]byte("lock:\n  key_prefix: \"sub:\"\n"), 0644)
	s.Require().NoError(err)

	cfg, err := LoadWithSearch[Config]("outbox", []string{"/nonexistent", subDir})
	s.NoError(err)
	s.Equal("sub:", cfg.Lock.KeyPrefix)
}

// === 默认值与验证 ===

func (s *ConfigTestSuite) TestDefaultConfig() {
	cfg := DefaultConfig()

	s.Equal(5*time.Second, cfg.Sweeper.Interval)
	s.Equal(30*time.Second, cfg.Sweeper.MinimumAge)
	s.Equal(100, cfg.Sweeper.BatchSize)
	s.Equal(time.Hour, cfg.Archiver.Interval)
	s.Equal(24*time.Hour, cfg.Archiver.MinimumAge)
	s.Equal(30*time.Second, cfg.Lock.LeaseValidity)
	s.Equal(3, cfg.Retry.MaxAttempts)
	s.Equal(uint32(5), cfg.Breaker.FailureThreshold)
	s.Equal(30*time.Second, cfg.Breaker.Cooldown)
	s.Equal("throw", cfg.Inbox.Action)
	s.NoError(cfg.Validate())
}

func (s *ConfigTestSuite) TestConfigValidate_NegativeDuration() {
	cfg := DefaultConfig()
	cfg.Sweeper.Interval = -time.Second
	s.Error(cfg.Validate())
}

// === GetConfigType 测试 ===

func (s *ConfigTestSuite) TestGetConfigType() {
	testCases := []struct {
		filename string
		expected string
	}{
		{"config.yaml", "yaml"},
		{"config.yml", "yaml"},
		{"config.json", "json"},
		{"config.toml", "toml"},
		{"config.ini", "ini"},
		{".env", "env"},
		{"app.properties", "properties"},
		{"config.unknown", ""},
		{"config", ""},
		{"CONFIG.YAML", "yaml"},
	}

	for _, tc := range testCases {
		s.Equal(tc.expected, GetConfigType(tc.filename), "文件: %s", tc.filename)
	}
}

// === Options 测试 ===

func (s *ConfigTestSuite) TestDefaultOptions() {
	opts := DefaultOptions()
	s.NotNil(opts)
	s.NotNil(opts.EnvKeyReplacer)
	s.True(opts.AutomaticEnv)
	s.False(opts.AllowEmptyEnv)
}

func (s *ConfigTestSuite) TestWithConfigType() {
	path := filepath.Join(s.tempDir, "config_noext")
	err := os.WriteFile(path, []byte("sweeper:\n  batch_size: 12\n"), 0644)
	s.Require().NoError(err)

	cfg, err := Load[Config](path, WithConfigType("yaml"))
	s.NoError(err)
	s.Equal(12, cfg.Sweeper.BatchSize)
}
