package outbox

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Tsukikage7/outboxkit/message"
)

// mongoDocument 发件箱文档.
type mongoDocument struct {
	ID           string          `bson:"_id"`
	Topic        string          `bson:"topic"`
	Header       message.Header  `bson:"header"`
	Body         []byte          `bson:"body"`
	ContentType  string          `bson:"content_type,omitempty"`
	CreatedAt    time.Time       `bson:"created_at"`
	DispatchedAt *time.Time      `bson:"dispatched_at,omitempty"`
}

// Mongo 基于 MongoDB 的发件箱存储.
type Mongo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// MongoOption Mongo 存储配置选项.
type MongoOption func(*Mongo)

// WithMongoClock 设置时钟函数.
func WithMongoClock(now func() time.Time) MongoOption {
	return func(m *Mongo) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMongo 创建 MongoDB 发件箱存储.
//
// 在集合上建立 created_at 和 dispatched_at 索引以支持扫描查询.
func NewMongo(ctx context.Context, coll *mongo.Collection, opts ...MongoOption) (*Mongo, error) {
	if coll == nil {
		return nil, errors.New("outbox: 集合为空")
	}

	m := &Mongo{coll: coll, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "dispatched_at", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Add 写入消息. 重复 ID（主键冲突）静默幂等.
func (m *Mongo) Add(ctx context.Context, msg *message.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	if msg.ID == "" {
		return ErrEmptyID
	}

	doc := mongoDocument{
		ID:          msg.ID,
		Topic:       msg.Header.Topic,
		Header:      msg.Header,
		Body:        msg.Body.Bytes,
		ContentType: msg.Body.ContentType,
		CreatedAt:   m.now(),
	}

	_, err := m.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return err
	}
	return nil
}

// Get 按 ID 读取消息.
func (m *Mongo) Get(ctx context.Context, id string) (*message.Message, error) {
	var doc mongoDocument
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.toMessage(), nil
}

// OutstandingMessages 返回创建于 olderThan 之前且未投递的消息.
func (m *Mongo) OutstandingMessages(ctx context.Context, olderThan time.Time, limit int) ([]*message.Message, error) {
	filter := bson.M{
		"dispatched_at": nil,
		"created_at":    bson.M{"$lt": olderThan},
	}
	return m.find(ctx, filter, bson.D{{Key: "created_at", Value: 1}}, limit)
}

// DispatchedMessages 返回投递于 olderThan 之前的消息.
func (m *Mongo) DispatchedMessages(ctx context.Context, olderThan time.Time, limit int) ([]*message.Message, error) {
	filter := bson.M{
		"dispatched_at": bson.M{"$ne": nil, "$lt": olderThan},
	}
	return m.find(ctx, filter, bson.D{{Key: "dispatched_at", Value: 1}}, limit)
}

// MarkDispatched 将指定条目标记为已投递.
func (m *Mongo) MarkDispatched(ctx context.Context, ids []string, dispatchedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := m.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"dispatched_at": dispatchedAt}},
	)
	return err
}

// Delete 删除条目.
func (m *Mongo) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := m.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

func (m *Mongo) find(ctx context.Context, filter bson.M, sort bson.D, limit int) ([]*message.Message, error) {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []*message.Message
	for cursor.Next(ctx) {
		var doc mongoDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		msgs = append(msgs, doc.toMessage())
	}
	return msgs, cursor.Err()
}

func (d *mongoDocument) toMessage() *message.Message {
	return &message.Message{
		ID:     d.ID,
		Header: d.Header,
		Body: message.Body{
			Bytes:       d.Body,
			ContentType: d.ContentType,
		},
	}
}
