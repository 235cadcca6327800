// Package archive keeps a replayable copy of each generated dataset in S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"

	"github.com/jarrod-lowe/churn-datagen/internal/event"
)

// ContentType of archived datasets: snappy framed JSON lines
const ContentType = "application/x-snappy-framed"

// S3Client defines the interface for S3 operations
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes datasets to a bucket
type S3Archive struct {
	client     S3Client
	bucketName string
}

// NewS3Archive creates a new S3Archive
func NewS3Archive(client S3Client, bucketName string) *S3Archive {
	return &S3Archive{
		client:     client,
		bucketName: bucketName,
	}
}

// Key returns the object key for a run: {container}/{streamPath}/{runID}.jsonl.sz
func Key(container, streamPath, runID string) string {
	return path.Join(container, strings.Trim(streamPath, "/"), runID+".jsonl.sz")
}

// Store encodes events one JSON object per line, compresses them and
// uploads the result under key. It returns the compressed size.
func (a *S3Archive) Store(ctx context.Context, key string, events []event.Event) (int64, error) {
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return 0, fmt.Errorf("failed to encode event: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("failed to compress dataset: %w", err)
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
		ContentType:   aws.String(ContentType),
		Metadata: map[string]string{
			"record-count": fmt.Sprintf("%d", len(events)),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put dataset object: %w", err)
	}

	return int64(buf.Len()), nil
}
