package archive

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// pruneHour is the local hour at which the daily prune runs.
const pruneHour = 3

// dayPattern matches the date segment of an archive key: prefix/YYYY-MM-DD/name.
var dayPattern = regexp.MustCompile(`(?:^|/)(\d{4}-\d{2}-\d{2})/`)

// ObjectLister is the subset of the S3 client used for retention.
type ObjectLister interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Pruner deletes archived logs older than a retention period.
type Pruner struct {
	client        ObjectLister
	bucket        string
	prefix        string
	retentionDays int
	now           func() time.Time
}

// NewPruner creates a pruner for the archive under prefix.
func NewPruner(client ObjectLister, bucket, prefix string, retentionDays int) *Pruner {
	return &Pruner{
		client:        client,
		bucket:        bucket,
		prefix:        prefix,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run prunes once a day at 03:00 local time until ctx is done.
func (p *Pruner) Run(ctx context.Context) {
	for {
		now := p.now()
		next := time.Date(now.Year(), now.Month(), now.Day(), pruneHour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		slog.Info("archive prune scheduled", "at", next.Format(time.DateTime))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			pruneCtx, cancel := context.WithTimeoutCause(ctx, 5*time.Minute, errors.New("archive prune timeout"))
			if _, err := p.Prune(pruneCtx); err != nil {
				slog.Warn("archive prune failed", "bucket", p.bucket, "error", err)
			}
			cancel()
		}
	}
}

// Prune deletes every object whose key date is before the retention cutoff
// and returns how many were deleted. A zero retention keeps everything.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	if p.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := p.now().UTC().AddDate(0, 0, -p.retentionDays)

	input := &s3.ListObjectsV2Input{Bucket: aws.String(p.bucket)}
	if p.prefix != "" {
		input.Prefix = aws.String(p.prefix + "/")
	}

	deleted := 0
	for {
		output, err := p.client.ListObjectsV2(ctx, input)
		if err != nil {
			return deleted, err
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			day, ok := keyDate(key)
			if !ok || !day.Before(cutoff) {
				continue
			}
			if _, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(p.bucket),
				Key:    obj.Key,
			}); err != nil {
				slog.Warn("failed to delete archived log", "key", key, "error", err)
				continue
			}
			deleted++
			slog.Debug("deleted archived log", "key", key)
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		input.ContinuationToken = output.NextContinuationToken
	}

	if deleted > 0 {
		slog.Info("pruned archived logs", "bucket", p.bucket, "count", deleted)
	}
	return deleted, nil
}

// keyDate extracts the upload day from an archive key.
func keyDate(key string) (time.Time, bool) {
	m := dayPattern.FindStringSubmatch(key)
	if len(m) < 2 {
		return time.Time{}, false
	}
	day, err := time.Parse(time.DateOnly, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

var _ ObjectLister = (*s3.Client)(nil)
