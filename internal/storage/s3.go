package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"querybridge/internal/dberr"
)

// S3Config holds the settings for an object-store destination. Endpoint is
// optional; when set, path-style addressing is used so S3-compatible stores
// work.
type S3Config struct {
	Region    string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Sink streams export artifacts into one bucket via multipart upload.
type S3Sink struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewS3Sink builds the sink and its client from static credentials.
func NewS3Sink(cfg S3Config, logger *slog.Logger) *S3Sink {
	if logger == nil {
		logger = slog.Default()
	}
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return &S3Sink{client: s3.New(opts), bucket: cfg.Bucket, logger: logger}
}

// Create streams through an io.Pipe into a multipart uploader so the whole
// artifact never sits in memory.
func (s *S3Sink) Create(ctx context.Context, key string) (io.WriteCloser, <-chan error) {
	reader, writer := io.Pipe()
	done := make(chan error, 1)

	go func() {
		defer close(done)

		uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
			u.PartSize = 10 * 1024 * 1024
			u.Concurrency = 5
		})

		s.logger.Debug("starting upload", "bucket", s.bucket, "key", key)
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   reader,
		})
		_ = reader.CloseWithError(err)

		if err != nil {
			s.logger.Error("upload failed", "bucket", s.bucket, "key", key, "error", err)
			done <- &dberr.ExportError{Reason: dberr.ExportIO, Err: err}
			return
		}
		done <- nil
	}()

	return writer, done
}

func (s *S3Sink) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &dberr.ExportError{Reason: dberr.ExportIO, Err: err}
	}
	return out.Body, nil
}

func (s *S3Sink) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &dberr.ExportError{Reason: dberr.ExportIO, Err: err}
	}
	return nil
}

func (s *S3Sink) URL(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}
