package inbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormRecord 收件箱表行. （请求类型，请求 ID，上下文键）为联合主键.
type gormRecord struct {
	RequestType string    `gorm:"column:request_type;primaryKey;size:255"`
	RequestID   string    `gorm:"column:request_id;primaryKey;size:64"`
	ContextKey  string    `gorm:"column:context_key;primaryKey;size:255"`
	Payload     []byte    `gorm:"column:payload"`
	ReceivedAt  time.Time `gorm:"column:received_at;not null"`
}

// TableName 指定表名.
func (gormRecord) TableName() string {
	return "inbox_requests"
}

// Gorm 基于 GORM 的关系库收件箱存储.
//
// add-if-absent 的原子性由主键冲突处理（ON CONFLICT DO NOTHING）保证.
type Gorm struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGorm 创建 GORM 收件箱存储，自动迁移表结构.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if db == nil {
		return nil, errors.New("inbox: 数据库实例为空")
	}
	if err := db.AutoMigrate(&gormRecord{}); err != nil {
		return nil, err
	}
	return &Gorm{db: db, now: time.Now}, nil
}

// Exists 检查请求是否已处理.
func (g *Gorm) Exists(ctx context.Context, requestType, id, contextKey string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).
		Model(&gormRecord{}).
		Where("request_type = ? AND request_id = ? AND context_key = ?", requestType, id, contextKey).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Add 记录已处理的请求. 重复键静默幂等.
func (g *Gorm) Add(ctx context.Context, req *Request, contextKey string) error {
	if req == nil {
		return ErrNilRequest
	}
	if req.ID == "" {
		return ErrEmptyID
	}

	rec := &gormRecord{
		RequestType: req.Type,
		RequestID:   req.ID,
		ContextKey:  contextKey,
		Payload:     req.Payload,
		ReceivedAt:  g.now(),
	}

	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec).Error
}

// Get 读取请求记录.
func (g *Gorm) Get(ctx context.Context, requestType, id, contextKey string) (*Request, error) {
	var rec gormRecord
	err := g.db.WithContext(ctx).
		Where("request_type = ? AND request_id = ? AND context_key = ?", requestType, id, contextKey).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &Request{
		ID:         rec.RequestID,
		Type:       rec.RequestType,
		Payload:    rec.Payload,
		ReceivedAt: rec.ReceivedAt,
	}, nil
}
