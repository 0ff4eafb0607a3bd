// Package storage uploads chat media to an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/errs"
)

// DefaultPresignTTL is used when no public base URL is configured.
const DefaultPresignTTL = 15 * time.Minute

// Options configure an S3Store.
type Options struct {
	Bucket        string
	Region        string
	Endpoint      string // MinIO and friends; empty for AWS
	PublicBaseURL string // when set, URLs are <base>/<key> instead of presigned
	KeyPrefix     string
	PresignTTL    time.Duration
	ThumbWidth    int
}

type putter interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements the composer's Uploader and Thumbnailer.
type S3Store struct {
	up   putter
	sign presigner
	opt  Options
	log  *zap.Logger
	now  func() time.Time
}

// NewS3Store loads AWS credentials from the environment and builds the client.
func NewS3Store(ctx context.Context, opt Options, log *zap.Logger) (*S3Store, error) {
	if opt.Bucket == "" {
		return nil, fmt.Errorf("storage bucket: %w", errs.ErrNotConfigured)
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(opt.Region))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(manager.NewUploader(client), s3.NewPresignClient(client), opt, log), nil
}

func newS3Store(up putter, sign presigner, opt Options, log *zap.Logger) *S3Store {
	if log == nil {
		log = zap.NewNop()
	}
	if opt.PresignTTL <= 0 {
		opt.PresignTTL = DefaultPresignTTL
	}
	if opt.ThumbWidth <= 0 {
		opt.ThumbWidth = DefaultThumbWidth
	}
	return &S3Store{up: up, sign: sign, opt: opt, log: log, now: time.Now}
}

// Upload stores data under a fresh key derived from name and returns its URL.
func (s *S3Store) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := s.key(name)
	if _, err := s.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opt.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}); err != nil {
		s.log.Warn("storage - upload - failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	s.log.Debug("storage - upload - ok", zap.String("key", key), zap.Int("size", len(data)))
	return s.url(ctx, key)
}

// UploadThumbnail stores a JPEG preview of an image.
func (s *S3Store) UploadThumbnail(ctx context.Context, name string, data []byte) (string, error) {
	thumb, err := Thumbnail(data, s.opt.ThumbWidth)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(name, path.Ext(name))
	return s.Upload(ctx, base+"_thumb.jpg", "image/jpeg", thumb)
}

func (s *S3Store) key(name string) string {
	id := uuid.Must(uuid.NewV7()).String()
	clean := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if clean == "." || clean == "/" {
		clean = "file"
	}
	k := id + "_" + clean
	if s.opt.KeyPrefix != "" {
		k = strings.Trim(s.opt.KeyPrefix, "/") + "/" + k
	}
	return k
}

func (s *S3Store) url(ctx context.Context, key string) (string, error) {
	if s.opt.PublicBaseURL != "" {
		return strings.TrimRight(s.opt.PublicBaseURL, "/") + "/" + escapeKey(key), nil
	}
	req, err := s.sign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opt.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.opt.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
