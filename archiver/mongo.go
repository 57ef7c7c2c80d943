package archiver

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Tsukikage7/outboxkit/message"
)

// mongoArchiveDocument 归档文档.
type mongoArchiveDocument struct {
	ID          string         `bson:"_id"`
	Topic       string         `bson:"topic"`
	Header      message.Header `bson:"header"`
	Body        []byte         `bson:"body"`
	ContentType string         `bson:"content_type,omitempty"`
	ArchivedAt  time.Time      `bson:"archived_at"`
}

// MongoProvider 基于 MongoDB 的归档落地.
//
// 归档集合只追加不更新；归档任务重跑时同一消息再次写入
// 会触发重复键，按幂等处理忽略.
type MongoProvider struct {
	coll *mongo.Collection
	now  func() time.Time
}

// MongoProviderOption MongoProvider 配置选项.
type MongoProviderOption func(*MongoProvider)

// WithMongoProviderClock 设置时钟函数.
func WithMongoProviderClock(now func() time.Time) MongoProviderOption {
	return func(p *MongoProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewMongoProvider 创建 MongoDB 归档落地.
func NewMongoProvider(coll *mongo.Collection, opts ...MongoProviderOption) (*MongoProvider, error) {
	if coll == nil {
		return nil, errors.New("archiver: 集合为空")
	}

	p := &MongoProvider{coll: coll, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ArchiveMessages 将一批消息追加到归档集合.
func (p *MongoProvider) ArchiveMessages(ctx context.Context, msgs []*message.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	archivedAt := p.now()
	docs := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		docs = append(docs, mongoArchiveDocument{
			ID:          msg.ID,
			Topic:       msg.Header.Topic,
			Header:      msg.Header,
			Body:        msg.Body.Bytes,
			ContentType: msg.Body.ContentType,
			ArchivedAt:  archivedAt,
		})
	}

	// ordered=false 让非重复的文档继续写入
	_, err := p.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !isDuplicateKey(err) {
		return err
	}
	return nil
}

// Count 返回归档集合中的文档数.
func (p *MongoProvider) Count(ctx context.Context) (int64, error) {
	return p.coll.CountDocuments(ctx, bson.D{})
}

// isDuplicateKey 判断是否仅为重复键错误.
func isDuplicateKey(err error) bool {
	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) {
		for _, we := range bulkErr.WriteErrors {
			if we.Code != 11000 {
				return false
			}
		}
		return len(bulkErr.WriteErrors) > 0
	}
	return mongo.IsDuplicateKeyError(err)
}
