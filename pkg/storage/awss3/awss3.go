// Package awss3 implements the collector storage on top of aws-sdk-go-v2.
// It works against AWS S3 as well as S3 compatible endpoints such as Ceph RGW.
package awss3

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/thannaske/s3report/pkg/models"
)

// API is the subset of the S3 client used by Storage
type API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Storage lists buckets and objects and writes reports into one report bucket
type Storage struct {
	client       API
	reportBucket string

	mu sync.RWMutex
	// regions holds the region ListBuckets reported for each bucket
	regions map[string]string
}

// New wraps an existing S3 API client
func New(client API, reportBucket string) *Storage {
	return &Storage{client: client, reportBucket: reportBucket, regions: map[string]string{}}
}

// NewFromConfig creates an S3 client from the application configuration.
// Static credentials are used when both keys are set, otherwise the SDK
// default credential chain applies.
func NewFromConfig(ctx context.Context, cfg models.Config) (*Storage, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, config.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, clientOptions(cfg))

	return New(client, cfg.ReportBucket), nil
}

func clientOptions(cfg models.Config) func(*s3.Options) {
	return func(o *s3.Options) {
		if cfg.S3Endpoint == "" {
			return
		}
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		// Ceph and MinIO expect path style addressing
		o.UsePathStyle = true
		// older RGW releases reject the default CRC32 checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}
}

// ListContainers returns all buckets visible to the credentials
func (s *Storage) ListContainers(ctx context.Context) ([]models.Container, error) {
	var containers []models.Container

	input := &s3.ListBucketsInput{}
	for {
		out, err := s.client.ListBuckets(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list buckets: %w", err)
		}
		for _, b := range out.Buckets {
			name := aws.ToString(b.Name)
			if region := aws.ToString(b.BucketRegion); region != "" {
				s.setRegion(name, region)
			}
			containers = append(containers, models.Container{Name: name})
		}
		next := aws.ToString(out.ContinuationToken)
		// some S3 compatible stores echo the token of the last page
		if next == "" || next == aws.ToString(input.ContinuationToken) {
			return containers, nil
		}
		input.ContinuationToken = out.ContinuationToken
	}
}

func (s *Storage) setRegion(bucket, region string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[bucket] = region
}

// bucketOptions sends requests for bucket to its own region. The SDK does
// not follow the PermanentRedirect S3 answers with for the wrong region.
func (s *Storage) bucketOptions(bucket string) []func(*s3.Options) {
	s.mu.RLock()
	region, ok := s.regions[bucket]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return []func(*s3.Options){func(o *s3.Options) { o.Region = region }}
}

// ListObjects returns the size of every object in a bucket, following all pages
func (s *Storage) ListObjects(ctx context.Context, bucket string) ([]models.ObjectEntry, error) {
	var entries []models.ObjectEntry

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx, s.bucketOptions(bucket)...)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects of bucket %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			entries = append(entries, models.ObjectEntry{SizeBytes: aws.ToInt64(obj.Size)})
		}
	}

	return entries, nil
}

// PutObject writes body under key in the report bucket, replacing any existing object
func (s *Storage) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.reportBucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	}, s.bucketOptions(s.reportBucket)...)
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", s.reportBucket, key, err)
	}
	return nil
}
