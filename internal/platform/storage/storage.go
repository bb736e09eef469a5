package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/tool"
)

// Archive keeps a copy of uploaded files, e.g. member import CSVs.
type Archive interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (key string, err error)
}

// S3 stores objects under Prefix/YYYY/MM/DD/<uuid>-<name>.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3(ctx context.Context, cfg config.StorageConfig) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	return &S3{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		now:    time.Now,
	}, nil
}

func (s *S3) key(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	k := s.now().UTC().Format("2006/01/02") + "/" + tool.GenerateUUIDV7() + "-" + base
	if s.prefix != "" {
		k = s.prefix + "/" + k
	}
	return k
}

func (s *S3) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Noop is used when no bucket is configured.
type Noop struct{}

func (Noop) Put(_ context.Context, _ string, _ string, r io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, r)
	return "", err
}

func newFromConfig(cfg *config.Config, log *zap.SugaredLogger) (Archive, error) {
	if cfg.Storage.Bucket == "" {
		log.Infow("import archive disabled, no storage bucket configured")
		return Noop{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := NewS3(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	log.Infow("import archive enabled", "bucket", cfg.Storage.Bucket, "prefix", cfg.Storage.Prefix)
	return s, nil
}

var Module = fx.Options(
	fx.Provide(newFromConfig),
)
