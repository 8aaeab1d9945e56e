package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"rx-reader/internal/domain"
)

const maxObjectBytes = 32 << 20

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store keeps uploaded prescription images in S3, encrypted at rest.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewStore(s3Client S3API, bucket string, logger *slog.Logger) (*Store, error) {
	if s3Client == nil {
		return nil, errors.New("imagestore: s3 client must not be nil")
	}
	if bucket == "" {
		return nil, errors.New("imagestore: bucket must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		bucket:   bucket,
		s3Client: s3Client,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}, nil
}

// Put uploads the image and returns its object key.
func (s *Store) Put(ctx context.Context, img domain.Image) (string, error) {
	now := s.now()
	key := fmt.Sprintf("prescriptions/v1/by-date/%d/%02d/%02d/%s.%s",
		now.Year(), now.Month(), now.Day(), s.newID(), img.Extension())

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(img.Data),
		ContentType:          aws.String(img.MIMEType),
		ContentLength:        aws.Int64(int64(len(img.Data))),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("imagestore: s3 put %s: %w", key, err)
	}
	s.logger.InfoContext(ctx, "archived prescription image", "s3_key", key, "bytes", len(img.Data))
	return key, nil
}

// Get downloads an archived image. A missing key is domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (domain.Image, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return domain.Image{}, fmt.Errorf("imagestore: %s: %w", key, domain.ErrNotFound)
		}
		return domain.Image{}, fmt.Errorf("imagestore: s3 get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectBytes))
	if err != nil {
		return domain.Image{}, fmt.Errorf("imagestore: read %s: %w", key, err)
	}
	mime := aws.ToString(out.ContentType)
	if mime == "" {
		mime = "application/octet-stream"
	}
	return domain.Image{MIMEType: mime, Data: data}, nil
}
