package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/outboxkit/logger"
)

// testRecord 测试用表结构.
type testRecord struct {
	ID        string    `gorm:"column:id;primaryKey;size:64"`
	Topic     string    `gorm:"column:topic;size:255"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (testRecord) TableName() string {
	return "test_records"
}

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	return logger.MustNew(&logger.Config{Level: "error", Format: "console"})
}

func sqliteConfig() *Config {
	return &Config{
		Driver:      DriverSQLite,
		DSN:         "file::memory:?cache=shared",
		AutoMigrate: true,
	}
}

func TestNewDatabaseValidation(t *testing.T) {
	log := testLogger(t)

	tests := []struct {
		name    string
		config  *Config
		log     logger.Logger
		wantErr error
	}{
		{name: "配置为空", config: nil, log: log, wantErr: ErrNilConfig},
		{name: "日志为空", config: sqliteConfig(), log: nil, wantErr: ErrNilLogger},
		{name: "驱动为空", config: &Config{DSN: "x"}, log: log, wantErr: ErrEmptyDriver},
		{name: "DSN为空", config: &Config{Driver: DriverSQLite}, log: log, wantErr: ErrEmptyDSN},
		{name: "不支持的驱动", config: &Config{Driver: "oracle", DSN: "x"}, log: log, wantErr: ErrUnsupportedDriver},
		{name: "不支持的类型", config: &Config{Type: "ent", Driver: DriverSQLite, DSN: "x"}, log: log, wantErr: ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDatabase(tt.config, tt.log)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := &Config{Driver: DriverSQLite, DSN: ":memory:"}
	cfg.ApplyDefaults()

	assert.Equal(t, TypeGORM, cfg.Type)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowThreshold)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.Pool.MaxOpen)
	assert.Equal(t, 10, cfg.Pool.MaxIdle)
	assert.Equal(t, time.Hour, cfg.Pool.MaxLifetime)
	assert.Equal(t, 10*time.Minute, cfg.Pool.MaxIdleTime)
}

func TestGORMDatabaseCRUD(t *testing.T) {
	db, err := NewDatabase(sqliteConfig(), testLogger(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.AutoMigrate(&testRecord{}))

	ctx := context.Background()
	rec := &testRecord{ID: "msg-1", Topic: "orders", CreatedAt: time.Now()}
	require.NoError(t, DB(ctx, db).Create(rec).Error)

	var got testRecord
	require.NoError(t, DB(ctx, db).First(&got, "id = ?", "msg-1").Error)
	assert.Equal(t, "orders", got.Topic)

	var count int64
	require.NoError(t, DB(ctx, db).Model(&testRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAutoMigrateDisabled(t *testing.T) {
	cfg := sqliteConfig()
	cfg.DSN = ":memory:"
	cfg.AutoMigrate = false

	db, err := NewDatabase(cfg, testLogger(t))
	require.NoError(t, err)
	defer db.Close()

	// 禁用时跳过建表，不报错
	require.NoError(t, db.AutoMigrate(&testRecord{}))
	assert.False(t, AsGORM(db).Migrator().HasTable(&testRecord{}))
}

func TestAsGORM(t *testing.T) {
	db, err := NewDatabase(sqliteConfig(), testLogger(t))
	require.NoError(t, err)
	defer db.Close()

	assert.NotNil(t, AsGORM(db))

	gdb, ok := db.(GORMDatabase)
	require.True(t, ok)
	assert.Same(t, AsGORM(db), gdb.GORM())
}
