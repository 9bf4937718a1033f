package sink

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

const defaultS3Region = "us-east-1"

// S3Options 对应配置中的 s3.* 字段。零值使用 SDK 默认凭据链。
type S3Options struct {
	Region    string
	Endpoint  string // 非空时指向 S3 兼容服务（MinIO 等）
	PathStyle bool
	// MaxRetries < 0 使用 SDK 默认值。
	MaxRetries int

	ContentType string

	// Credentials 为 nil 时走 SDK 默认凭据链（环境变量 / shared config / 实例角色）。
	Credentials *credentials.Credentials
}

// S3 通过 s3manager 上传；小于分片阈值的对象走单次 PutObject，上传成功前对象不可见。
type S3 struct {
	Bucket string
	Prefix string

	contentType string
	uploader    *s3manager.Uploader
}

func NewS3(bucket, prefix string, o S3Options) (*S3, error) {
	region := strings.TrimSpace(o.Region)
	if region == "" {
		region = defaultS3Region
	}

	cfg := &aws.Config{
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(o.PathStyle),
	}
	if ep := strings.TrimSpace(o.Endpoint); ep != "" {
		cfg.Endpoint = aws.String(ep)
	}
	if o.MaxRetries >= 0 {
		cfg.MaxRetries = aws.Int(o.MaxRetries)
	}
	if o.Credentials != nil {
		cfg.Credentials = o.Credentials
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("创建 aws session 失败：%w", err)
	}
	return &S3{
		Bucket:      bucket,
		Prefix:      strings.Trim(prefix, "/"),
		contentType: o.ContentType,
		uploader:    s3manager.NewUploader(sess),
	}, nil
}

func (s *S3) objectKey(key string) string {
	if s.Prefix == "" {
		return key
	}
	return s.Prefix + "/" + key
}

func (s *S3) Location(key string) string {
	return "s3://" + s.Bucket + "/" + s.objectKey(key)
}

func (s *S3) Store(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return storageErr("store", err)
	}

	in := &s3manager.UploadInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	}
	if s.contentType != "" {
		in.ContentType = aws.String(s.contentType)
	}
	if _, err := s.uploader.UploadWithContext(ctx, in); err != nil {
		return storageErr("store", fmt.Errorf("上传 %s 失败：%w", s.Location(key), err))
	}
	return nil
}
