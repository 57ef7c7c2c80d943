package claimcheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/Tsukikage7/outboxkit/logger"
)

// S3Config S3 转存存储配置.
type S3Config struct {
	// Endpoint 服务端点，兼容 MinIO 等 S3 协议存储.
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// Region 区域.
	Region string `json:"region" yaml:"region" mapstructure:"region"`

	// Bucket 存储桶名称.
	Bucket string `json:"bucket" yaml:"bucket" mapstructure:"bucket"`

	// AccessKey 访问密钥 ID.
	AccessKey string `json:"access_key" yaml:"access_key" mapstructure:"access_key"`

	// SecretKey 访问密钥.
	SecretKey string `json:"secret_key" yaml:"secret_key" mapstructure:"secret_key"`

	// KeyPrefix 对象键前缀，默认 "claimcheck/".
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`

	// UsePathStyle 使用 path-style 访问，MinIO 需要开启.
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style" mapstructure:"use_path_style"`

	// MaxRetries 最大重试次数，默认 3.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// ApplyDefaults 填充默认值.
func (c *S3Config) ApplyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "claimcheck/"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// Validate 验证配置.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("claimcheck: bucket 不能为空")
	}
	if c.Region == "" {
		return errors.New("claimcheck: region 不能为空")
	}
	return nil
}

// S3 基于 S3 的转存存储.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	log    logger.Logger
}

// NewS3 创建 S3 转存存储.
//
// 示例:
//
//	store, err := claimcheck.NewS3(&claimcheck.S3Config{
//		Endpoint:     "http://localhost:9000",
//		Region:       "us-east-1",
//		Bucket:       "messages",
//		AccessKey:    "minioadmin",
//		SecretKey:    "minioadmin",
//		UsePathStyle: true,
//	}, log)
func NewS3(cfg *S3Config, log logger.Logger) (*S3, error) {
	if cfg == nil {
		return nil, errors.New("claimcheck: 配置不能为空")
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(cfg.MaxRetries),
	}

	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...any) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				SigningRegion:     cfg.Region,
				HostnameImmutable: cfg.UsePathStyle,
			}, nil
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("claimcheck: 加载 AWS 配置失败: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.KeyPrefix,
		log:    log,
	}, nil
}

// Put 存储 blob，返回引用 ID.
func (s *S3) Put(ctx context.Context, data []byte) (string, error) {
	id := uuid.NewString()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(id)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("claimcheck: 存储 blob 失败: %w", err)
	}

	return id, nil
}

// Get 按引用 ID 读取 blob.
func (s *S3) Get(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("claimcheck: 读取 blob 失败: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("claimcheck: 读取 blob 内容失败: %w", err)
	}

	return data, nil
}

// Delete 删除 blob. 不存在的 ID 忽略.
func (s *S3) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("claimcheck: 删除 blob 失败: %w", err)
	}

	return nil
}

// Exists 检查 blob 是否存在.
func (s *S3) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return false, nil
	}

	return true, nil
}

// PurgeExpired 清理存放超过 olderThan 的孤儿 blob.
//
// 按键前缀分页遍历，根据对象的 LastModified 判断是否过期.
func (s *S3) PurgeExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	purged := 0

	var continuationToken *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: continuationToken,
		}

		result, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return purged, fmt.Errorf("claimcheck: 遍历 blob 失败: %w", err)
		}

		var expired []types.ObjectIdentifier
		for _, obj := range result.Contents {
			if aws.ToTime(obj.LastModified).Before(cutoff) {
				expired = append(expired, types.ObjectIdentifier{Key: obj.Key})
			}
		}

		if len(expired) > 0 {
			_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{Objects: expired},
			})
			if err != nil {
				return purged, fmt.Errorf("claimcheck: 批量删除 blob 失败: %w", err)
			}
			purged += len(expired)
		}

		if !aws.ToBool(result.IsTruncated) {
			break
		}
		continuationToken = result.NextContinuationToken
	}

	if s.log != nil && purged > 0 {
		s.log.Infof("claimcheck: 清理过期 blob %d 个", purged)
	}

	return purged, nil
}

func (s *S3) key(id string) string {
	return s.prefix + id
}
