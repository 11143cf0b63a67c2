package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/zoomsync/backend/internal/models"
)

const (
	// FolderRecordings is the S3 prefix for recording objects.
	FolderRecordings = "recordings"
	partSize         = 16 * 1024 * 1024
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	RecordingsBucket string
	// Endpoint overrides the S3 endpoint (MinIO and other S3-compatible stores).
	Endpoint string
}

type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3 uploads downloaded recordings to a bucket. It is the alternative upload target to YouTube.
type S3 struct {
	uploader uploadAPI
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 uploader using static credentials when configured, else the default credential chain.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecordingsBucket == "" {
		return nil, fmt.Errorf("s3: recordings bucket is required")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
		logger.Info("S3 client using configured credentials", zap.String("region", cfg.Region), zap.String("bucket", cfg.RecordingsBucket))
	} else {
		logger.Warn("S3 client using default credential chain")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	return &S3{uploader: uploader, cfg: cfg, logger: logger}, nil
}

// RecordingKey returns the object key: recordings/{playlist}/{filename}.
func RecordingKey(playlist, filename string) string {
	if playlist == "" {
		playlist = "Other"
	}
	clean := strings.NewReplacer("/", "_", "\\", "_").Replace(playlist)
	return path.Join(FolderRecordings, clean, path.Base(filename))
}

// ObjectURL returns the virtual-hosted URL of an object, or the path-style URL under a custom endpoint.
func (s *S3) ObjectURL(key string) string {
	if s.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.RecordingsBucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.RecordingsBucket, s.cfg.Region, key)
}

// Upload streams the local file at filePath to the recordings bucket and returns the object URL.
func (s *S3) Upload(ctx context.Context, filePath string, meta models.UploadMetadata) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	name := meta.Filename
	if name == "" {
		name = filepath.Base(filePath)
	}
	key := RecordingKey(meta.Playlist, name)
	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if contentType == "" {
		contentType = "video/mp4"
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.RecordingsBucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"title":    asciiOnly(meta.Title),
			"category": meta.Category,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	s.logger.Info("recording uploaded to s3", zap.String("key", key))
	return s.ObjectURL(key), nil
}

// asciiOnly drops characters that cannot travel in S3 user metadata headers.
func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, s)
}
