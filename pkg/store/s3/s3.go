// Package s3 provides cold snapshot storage on S3-compatible object
// storage. Snapshots are stored as JSON blobs keyed by graph id.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/docgraph-io/docgraph/internal/util"
	"github.com/docgraph-io/docgraph/pkg/kg"
)

// SnapshotStore implements store.SnapshotStore on an S3 bucket.
//
// A SnapshotStore should be created using NewSnapshotStore.
type SnapshotStore struct {
	client *awss3.Client
	bucket string
	prefix string
}

// NewSnapshotStoreParams contains all dependencies needed to create a new
// SnapshotStore. Empty fields fall back to the AWS_* environment
// variables.
type NewSnapshotStoreParams struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(ctx context.Context, params NewSnapshotStoreParams) (*SnapshotStore, error) {
	region := fallbackEnv(params.Region, "AWS_REGION")
	endpoint := fallbackEnv(params.Endpoint, "AWS_ENDPOINT")
	accessKey := fallbackEnv(params.AccessKey, "AWS_ACCESS_KEY")
	secretKey := fallbackEnv(params.SecretKey, "AWS_SECRET_KEY")
	bucket := fallbackEnv(params.Bucket, "AWS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("snapshot bucket is not configured")
	}

	cfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithBaseEndpoint(endpoint),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		o.UsePathStyle = true
	})

	prefix := params.Prefix
	if prefix == "" {
		prefix = "snapshots"
	}

	return &SnapshotStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// PutSnapshot uploads a snapshot, replacing any previous one for the same
// graph.
func (s *SnapshotStore) PutSnapshot(ctx context.Context, graphID string, snap *kg.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(graphID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return nil
}

// GetSnapshot downloads and decodes the snapshot of a graph.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, graphID string) (*kg.Snapshot, error) {
	result, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(graphID)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot body: %w", err)
	}

	var snap kg.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// DeleteSnapshot removes the stored snapshot of a graph.
func (s *SnapshotStore) DeleteSnapshot(ctx context.Context, graphID string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(graphID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) key(graphID string) string {
	return fmt.Sprintf("%s/%s.json", s.prefix, graphID)
}

func fallbackEnv(value, envKey string) string {
	if value != "" {
		return value
	}
	return util.GetEnv(envKey)
}
