package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tsukikage7/outboxkit/message"
)

// txKey 事务上下文键类型.
type txKey struct{}

// WithTx 将业务事务注入上下文.
//
// Gorm 存储的 Add 在该事务内执行，这是发件箱模式的关键：
//
//	db.Transaction(func(tx *gorm.DB) error {
//	    if err := tx.Create(&order).Error; err != nil {
//	        return err
//	    }
//	    return store.Add(outbox.WithTx(ctx, tx), msg)
//	})
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// gormRecord 发件箱表行.
type gormRecord struct {
	ID           string     `gorm:"column:id;primaryKey;size:64"`
	Topic        string     `gorm:"column:topic;size:255;not null"`
	MessageType  string     `gorm:"column:message_type;size:32"`
	Header       []byte     `gorm:"column:header"`
	Body         []byte     `gorm:"column:body"`
	ContentType  string     `gorm:"column:content_type;size:128"`
	PartitionKey string     `gorm:"column:partition_key;size:255"`
	CreatedAt    time.Time  `gorm:"column:created_at;index;not null"`
	DispatchedAt *time.Time `gorm:"column:dispatched_at;index"`
}

// TableName 指定表名.
func (gormRecord) TableName() string {
	return "outbox_messages"
}

// Gorm 基于 GORM 的关系库发件箱存储.
//
// 兼容 MySQL、PostgreSQL、SQLite（由传入的 *gorm.DB 决定方言）.
type Gorm struct {
	db  *gorm.DB
	now func() time.Time
}

// GormOption Gorm 存储配置选项.
type GormOption func(*Gorm)

// WithGormClock 设置时钟函数.
func WithGormClock(now func() time.Time) GormOption {
	return func(g *Gorm) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGorm 创建 GORM 发件箱存储.
//
// 自动迁移发件箱表结构.
func NewGorm(db *gorm.DB, opts ...GormOption) (*Gorm, error) {
	if db == nil {
		return nil, errors.New("outbox: 数据库实例为空")
	}

	g := &Gorm{db: db, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}

	if err := db.AutoMigrate(&gormRecord{}); err != nil {
		return nil, err
	}
	return g, nil
}

// session 返回绑定上下文的会话，优先使用上下文中的业务事务.
func (g *Gorm) session(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return g.db.WithContext(ctx)
}

// Add 写入消息. 重复 ID 通过 ON CONFLICT DO NOTHING 静默幂等.
func (g *Gorm) Add(ctx context.Context, msg *message.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	if msg.ID == "" {
		return ErrEmptyID
	}

	rec, err := toGormRecord(msg, g.now())
	if err != nil {
		return err
	}

	return g.session(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec).Error
}

// Get 按 ID 读取消息.
func (g *Gorm) Get(ctx context.Context, id string) (*message.Message, error) {
	var rec gormRecord
	err := g.session(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromGormRecord(&rec)
}

// OutstandingMessages 返回创建于 olderThan 之前且未投递的消息.
func (g *Gorm) OutstandingMessages(ctx context.Context, olderThan time.Time, limit int) ([]*message.Message, error) {
	query := g.session(ctx).
		Where("dispatched_at IS NULL AND created_at < ?", olderThan).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []gormRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, err
	}
	return fromGormRecords(recs)
}

// DispatchedMessages 返回投递于 olderThan 之前的消息.
func (g *Gorm) DispatchedMessages(ctx context.Context, olderThan time.Time, limit int) ([]*message.Message, error) {
	query := g.session(ctx).
		Where("dispatched_at IS NOT NULL AND dispatched_at < ?", olderThan).
		Order("dispatched_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []gormRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, err
	}
	return fromGormRecords(recs)
}

// MarkDispatched 将指定条目标记为已投递.
func (g *Gorm) MarkDispatched(ctx context.Context, ids []string, dispatchedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return g.session(ctx).
		Model(&gormRecord{}).
		Where("id IN ?", ids).
		Update("dispatched_at", dispatchedAt).Error
}

// Delete 删除条目.
func (g *Gorm) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return g.session(ctx).
		Where("id IN ?", ids).
		Delete(&gormRecord{}).Error
}

// toGormRecord 将消息编码为表行.
func toGormRecord(msg *message.Message, createdAt time.Time) (*gormRecord, error) {
	header, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, err
	}
	return &gormRecord{
		ID:           msg.ID,
		Topic:        msg.Header.Topic,
		MessageType:  string(msg.Header.MessageType),
		Header:       header,
		Body:         msg.Body.Bytes,
		ContentType:  msg.Body.ContentType,
		PartitionKey: msg.Header.PartitionKey,
		CreatedAt:    createdAt,
	}, nil
}

// fromGormRecord 将表行解码为消息.
func fromGormRecord(rec *gormRecord) (*message.Message, error) {
	msg := &message.Message{ID: rec.ID}
	if err := json.Unmarshal(rec.Header, &msg.Header); err != nil {
		return nil, err
	}
	msg.Body = message.Body{
		Bytes:       rec.Body,
		ContentType: rec.ContentType,
	}
	return msg, nil
}

func fromGormRecords(recs []gormRecord) ([]*message.Message, error) {
	msgs := make([]*message.Message, 0, len(recs))
	for i := range recs {
		msg, err := fromGormRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
