package models

import (
	"strconv"
	"strings"
	"time"
)

// Container is a bucket as reported by the storage service
type Container struct {
	Name string
}

// ObjectEntry is a single object seen while listing a bucket
type ObjectEntry struct {
	SizeBytes int64
}

// GB is a size in gibibytes. It always encodes with at least one
// fractional digit so whole values read as 1.0 rather than 1.
type GB float64

// MarshalJSON implements json.Marshaler
func (g GB) MarshalJSON() ([]byte, error) {
	s := strconv.FormatFloat(float64(g), 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// ContainerUsage is the aggregated usage of one bucket for a single run.
// The JSON keys are read by the dashboard and must not change.
type ContainerUsage struct {
	BucketName  string `json:"BucketName"`
	ObjectCount int64  `json:"ObjectCount"`
	TotalSizeGB GB     `json:"TotalSizeGB"`
	SizeBytes   int64  `json:"-"`
}

// UsageReport is the ordered list of bucket usages written as one artifact
type UsageReport []ContainerUsage

// SkippedContainer is a bucket left out of a report because its listing failed
type SkippedContainer struct {
	Name string
	Err  error
}

// Run describes everything observed during one collection
type Run struct {
	ArtifactID  string
	GeneratedAt time.Time
	Report      UsageReport
	Skipped     []SkippedContainer
}

// Result is returned to the trigger after a successful collection
type Result struct {
	ArtifactID     string `json:"saved_to_s3"`
	ContainerCount int    `json:"bucket_count"`
	// GeneratedAt is the UTC time the run started, the date of ArtifactID
	GeneratedAt time.Time `json:"-"`
}

// Failure is returned to the trigger when a collection fails
type Failure struct {
	Error string `json:"error"`
}

// BucketUsage represents the disk usage for a single bucket at a specific point in time
type BucketUsage struct {
	ID          int64     `json:"id"`
	RunID       int64     `json:"run_id"`
	BucketName  string    `json:"bucket_name"`
	SizeBytes   int64     `json:"size_bytes"`
	ObjectCount int64     `json:"object_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// CollectionRun is a stored record of one successful collection
type CollectionRun struct {
	ID           int64     `json:"id"`
	ArtifactID   string    `json:"artifact_id"`
	BucketCount  int       `json:"bucket_count"`
	SkippedCount int       `json:"skipped_count"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// MonthlyBucketAverage represents the average disk usage for a bucket over a month
type MonthlyBucketAverage struct {
	BucketName     string  `json:"bucket_name"`
	Year           int     `json:"year"`
	Month          int     `json:"month"`
	AvgSizeBytes   float64 `json:"avg_size_bytes"`
	AvgObjectCount float64 `json:"avg_object_count"`
	DataPoints     int     `json:"data_points"`
}

// Storage drivers
const (
	DriverAWS   = "aws"
	DriverMinio = "minio"
	DriverCeph  = "ceph"
)

// Config represents the application configuration
type Config struct {
	Driver       string `mapstructure:"driver"`
	S3Endpoint   string `mapstructure:"endpoint"`
	S3AccessKey  string `mapstructure:"access-key"`
	S3SecretKey  string `mapstructure:"secret-key"`
	S3Region     string `mapstructure:"region"`
	UseSSL       bool   `mapstructure:"use-ssl"`
	ReportBucket string `mapstructure:"report-bucket"`
	ReportPrefix string `mapstructure:"report-prefix"`
	Concurrency  int    `mapstructure:"concurrency"`
	Schedule     string `mapstructure:"schedule"`
	DBPath       string `mapstructure:"db"`
	LogLevel     string `mapstructure:"log-level"`
	LogFile      string `mapstructure:"log-file"`
}
