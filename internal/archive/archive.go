// Package archive rotates the event log and uploads rotated files to
// S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oszuidwest/zwfm-gapmeter/internal/config"
	"github.com/oszuidwest/zwfm-gapmeter/internal/util"
)

const (
	uploadTimeout     = 60000 * time.Millisecond
	maxUploadAttempts = 5
	initialRetryDelay = 2000 * time.Millisecond
	maxRetryDelay     = 60000 * time.Millisecond
)

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Rotator moves the active log aside and returns the rotated file path.
type Rotator interface {
	Rotate() (string, error)
}

// NewS3Client creates an S3 client with static credentials.
func NewS3Client(cfg *config.S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// Uploader periodically rotates a log and uploads the rotated files.
type Uploader struct {
	client  ObjectPutter
	bucket  string
	prefix  string
	rotator Rotator
	now     func() time.Time
}

// NewUploader creates an uploader writing to bucket under prefix.
func NewUploader(client ObjectPutter, bucket, prefix string, rotator Rotator) *Uploader {
	return &Uploader{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		rotator: rotator,
		now:     time.Now,
	}
}

// Run rotates and uploads every interval until ctx is done. A final rotation
// is uploaded on shutdown with a fresh deadline.
func (u *Uploader) Run(ctx context.Context, interval time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in log archiver", "panic", r)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadTimeout)
			u.RotateAndUpload(finalCtx)
			cancel()
			return
		case <-ticker.C:
			u.RotateAndUpload(ctx)
		}
	}
}

// RotateAndUpload rotates the log and uploads the rotated file, removing it
// locally once stored.
func (u *Uploader) RotateAndUpload(ctx context.Context) {
	path, err := u.rotator.Rotate()
	if err != nil {
		slog.Error("failed to rotate event log", "error", err)
		return
	}
	if path == "" {
		return
	}

	if err := u.UploadWithRetry(ctx, path); err != nil {
		slog.Error("failed to archive event log", "file", filepath.Base(path), "error", err)
		return
	}
	if err := os.Remove(path); err != nil {
		slog.Warn("failed to remove archived log", "file", path, "error", err)
	}
}

// UploadWithRetry uploads path, retrying with exponential backoff.
func (u *Uploader) UploadWithRetry(ctx context.Context, path string) error {
	backoff := util.NewBackoff(initialRetryDelay, maxRetryDelay)
	var lastErr error
	for attempt := range maxUploadAttempts {
		if attempt > 0 {
			if err := backoff.Wait(ctx); err != nil {
				return fmt.Errorf("upload canceled after %d attempts: %w", attempt, lastErr)
			}
		}
		if lastErr = u.Upload(ctx, path); lastErr == nil {
			return nil
		}
		slog.Warn("log upload failed", "file", filepath.Base(path), "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

// Upload stores one file. The object key groups files by upload day.
func (u *Uploader) Upload(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return util.WrapError("read log file", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	key := util.ArchiveKey(u.prefix, filepath.Base(path), u.now())
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/x-ndjson"),
	})
	if err != nil {
		return util.WrapError("upload "+key, err)
	}
	slog.Info("archived event log", "key", key, "bytes", len(data))
	return nil
}

// ProbeBucket verifies bucket access by uploading and deleting a probe.
func ProbeBucket(ctx context.Context, client ObjectPutter, bucket string) error {
	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("gapmeter connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}
	return nil
}

var _ ObjectPutter = (*s3.Client)(nil)
