package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Shavakan/db-failover/pkg/logging"
)

var archiveLog = logging.WithComponent(logging.LogTypeAudit, "archive")

// S3API defines S3 operations for the audit archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver moves aged audit records out of the hot table into S3, one JSON
// object per event, keyed by finish date.
type Archiver struct {
	store    *Store
	s3Client S3API
	bucket   string
}

// NewArchiver creates an archiver over the audit store and bucket.
func NewArchiver(store *Store, cfg aws.Config, bucket string) *Archiver {
	return NewArchiverWithClient(store, s3.NewFromConfig(cfg), bucket)
}

// NewArchiverWithClient creates an archiver with an existing client (for testing).
func NewArchiverWithClient(store *Store, s3Client S3API, bucket string) *Archiver {
	return &Archiver{store: store, s3Client: s3Client, bucket: bucket}
}

// ArchiveBefore uploads every record finished before the cutoff and removes
// it from the table. The upload happens first, so a failure mid-pass leaves
// records in the table rather than losing them.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	records, err := a.store.olderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, record := range records {
		if err := a.upload(ctx, record); err != nil {
			return archived, err
		}
		if err := a.store.delete(ctx, record.EventID); err != nil {
			return archived, err
		}
		archived++
	}

	if archived > 0 {
		archiveLog.Info("archived aged audit records",
			slog.Int(logging.KeyCount, archived))
	}
	return archived, nil
}

func (a *Archiver) upload(ctx context.Context, record eventRecord) error {
	body, err := json.Marshal(record.toEvent())
	if err != nil {
		return fmt.Errorf("failed to marshal archive record: %w", err)
	}

	finished, _ := time.Parse(time.RFC3339Nano, record.FinishedAt)
	key := fmt.Sprintf("failovers/%s/%s.json", finished.UTC().Format("2006/01/02"), record.EventID)

	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive event %s: %w", record.EventID, err)
	}
	return nil
}
