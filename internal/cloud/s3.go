package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Client archives finished reconciliation runs to the data lake bucket.
type S3Client struct {
	svc    s3API
	bucket string
}

func NewS3Client(cfg aws.Config, bucket string) *S3Client {
	return &S3Client{svc: s3.NewFromConfig(cfg), bucket: bucket}
}

type runArchive struct {
	Summary domain.RunSummary             `json:"summary"`
	Results []domain.ReconciliationResult `json:"results"`
}

func RunKey(runID string, at time.Time) string {
	return fmt.Sprintf("reconciliation/%s/%s.json", at.UTC().Format("2006-01-02"), runID)
}

func (c *S3Client) ArchiveRun(ctx context.Context, s domain.RunSummary, results []domain.ReconciliationResult, at time.Time) error {
	data, err := json.Marshal(runArchive{Summary: s, Results: results})
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	_, err = c.svc.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(RunKey(s.RunID, at)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"uploaded-at": at.Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload data file: %w", err)
	}
	return nil
}
