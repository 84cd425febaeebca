// Package minio implements the collector storage with the MinIO client.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/thannaske/s3report/pkg/models"
)

// Storage wraps a MinIO client and the bucket reports are written to
type Storage struct {
	client       *minio.Client
	reportBucket string
}

// New connects to the configured endpoint. A full URL is accepted, in
// which case its scheme decides whether TLS is used.
func New(cfg models.Config) (*Storage, error) {
	endpoint, secure := ParseEndpoint(cfg.S3Endpoint, cfg.UseSSL)

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: secure,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	cli.SetAppInfo("s3report", "1")

	return &Storage{client: cli, reportBucket: cfg.ReportBucket}, nil
}

// ParseEndpoint strips an optional scheme from endpoint and reports whether TLS should be used
func ParseEndpoint(endpoint string, useSSL bool) (string, bool) {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host, u.Scheme == "https"
	}
	return endpoint, useSSL
}

// ListContainers returns all buckets visible to the credentials
func (s *Storage) ListContainers(ctx context.Context) ([]models.Container, error) {
	buckets, err := s.client.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	containers := make([]models.Container, 0, len(buckets))
	for _, b := range buckets {
		containers = append(containers, models.Container{Name: b.Name})
	}
	return containers, nil
}

// ListObjects returns the size of every object in a bucket
func (s *Storage) ListObjects(ctx context.Context, bucket string) ([]models.ObjectEntry, error) {
	// cancelling stops the listing goroutine when returning early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var entries []models.ObjectEntry
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects of bucket %s: %w", bucket, obj.Err)
		}
		entries = append(entries, models.ObjectEntry{SizeBytes: obj.Size})
	}
	return entries, nil
}

// PutObject writes body under key in the report bucket
func (s *Storage) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.reportBucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", s.reportBucket, key, err)
	}
	return nil
}
