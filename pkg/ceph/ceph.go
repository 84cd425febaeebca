// Package ceph enumerates buckets through the Ceph RGW Admin API, which
// returns every bucket of the cluster rather than only those owned by the
// requesting user. Objects are listed and reports written over plain S3.
package ceph

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/thannaske/s3report/pkg/models"
	"github.com/thannaske/s3report/pkg/storage/awss3"
)

// Storage lists buckets with the Admin API and delegates everything else to S3
type Storage struct {
	*awss3.Storage
	adminClient *http.Client
	endpoint    string
	accessKey   string
	secretKey   string
	region      string
}

// NewStorage creates a Ceph storage from the configuration
func NewStorage(ctx context.Context, cfg models.Config) (*Storage, error) {
	s3Storage, err := awss3.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(s3Storage, cfg), nil
}

// New combines an existing S3 storage with an Admin API client
func New(s3Storage *awss3.Storage, cfg models.Config) *Storage {
	return &Storage{
		Storage:     s3Storage,
		adminClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:    cfg.S3Endpoint,
		accessKey:   cfg.S3AccessKey,
		secretKey:   cfg.S3SecretKey,
		region:      cfg.S3Region,
	}
}

// executeSignedRequest executes an Admin API request with an AWS v4 signature
func (c *Storage) executeSignedRequest(ctx context.Context, method, path string, queryParams url.Values) ([]byte, error) {
	parsedURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	parsedURL.Path = path
	if queryParams != nil {
		parsedURL.RawQuery = queryParams.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, parsedURL.String(), bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// hash of the empty body
	sum := sha256.Sum256(nil)
	payloadHash := hex.EncodeToString(sum[:])
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)

	creds := aws.Credentials{
		AccessKeyID:     c.accessKey,
		SecretAccessKey: c.secretKey,
	}
	if err := v4.NewSigner().SignHTTP(ctx, creds, req, payloadHash, "s3", c.region, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := c.adminClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// ListContainers retrieves the list of all buckets using the Admin API
func (c *Storage) ListContainers(ctx context.Context) ([]models.Container, error) {
	respBody, err := c.executeSignedRequest(ctx, http.MethodGet, "/admin/bucket", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets with Admin API: %w", err)
	}

	// the response is a plain array of bucket names
	var bucketList []string
	if err := json.Unmarshal(respBody, &bucketList); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	containers := make([]models.Container, 0, len(bucketList))
	for _, name := range bucketList {
		containers = append(containers, models.Container{Name: name})
	}
	return containers, nil
}
