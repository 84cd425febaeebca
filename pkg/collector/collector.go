// Package collector builds the daily bucket usage report and stores it
// back into the object store.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/thannaske/s3report/pkg/models"
)

const (
	// ContentType of the stored report
	ContentType = "application/json"

	bytesPerGB = 1 << 30
)

var (
	// ErrAggregationFailed is wrapped by every error Collect returns
	ErrAggregationFailed = errors.New("aggregation_failed")
	// ErrEnumeration means the bucket list could not be fetched
	ErrEnumeration = errors.New("failed to list buckets")
	// ErrPersistence means the report could not be written
	ErrPersistence = errors.New("failed to store report")
)

// Storage is the set of object store calls the collector depends on
type Storage interface {
	ListContainers(ctx context.Context) ([]models.Container, error)
	ListObjects(ctx context.Context, container string) ([]models.ObjectEntry, error)
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// Recorder receives every run whose report was stored
type Recorder interface {
	RecordRun(ctx context.Context, run models.Run) error
}

// Options tune a Collector. The zero value is usable.
type Options struct {
	// Concurrency bounds parallel bucket listings. Values below 2 list sequentially.
	Concurrency int
	// Prefix is prepended to the artifact key
	Prefix   string
	Now      func() time.Time
	Logger   *zerolog.Logger
	Recorder Recorder
}

// Collector produces one usage report per Collect call
type Collector struct {
	storage     Storage
	concurrency int
	prefix      string
	now         func() time.Time
	logger      zerolog.Logger
	recorder    Recorder
}

// New creates a Collector on top of the given storage
func New(storage Storage, opts Options) *Collector {
	c := &Collector{
		storage:     storage,
		concurrency: opts.Concurrency,
		prefix:      opts.Prefix,
		now:         opts.Now,
		logger:      zerolog.Nop(),
		recorder:    opts.Recorder,
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.Logger != nil {
		c.logger = *opts.Logger
	}
	return c
}

// ArtifactID returns the report key for the UTC calendar date of t
func ArtifactID(t time.Time) string {
	return fmt.Sprintf("s3-usage-%s.json", t.UTC().Format("2006-01-02"))
}

// RoundGB converts bytes to gibibytes rounded to two decimals, half away from zero
func RoundGB(sizeBytes int64) models.GB {
	return models.GB(math.Round(float64(sizeBytes)/bytesPerGB*100) / 100)
}

// Aggregate folds an object listing into the usage of one bucket
func Aggregate(name string, entries []models.ObjectEntry) models.ContainerUsage {
	var total int64
	for _, e := range entries {
		total += e.SizeBytes
	}
	return models.ContainerUsage{
		BucketName:  name,
		ObjectCount: int64(len(entries)),
		TotalSizeGB: RoundGB(total),
		SizeBytes:   total,
	}
}

// FailureResult is the shape returned to the trigger when Collect fails.
// The message is the same for every cause, the cause itself is only logged.
func FailureResult() models.Failure {
	return models.Failure{Error: "failed to generate usage report"}
}

// outcome is the result of listing one bucket. A non-nil err means the
// bucket is left out of the report.
type outcome struct {
	usage models.ContainerUsage
	err   error
}

// Collect lists every bucket, aggregates their objects and writes the report.
// A bucket whose listing fails is skipped. Failing to enumerate buckets or to
// write the report fails the whole run and nothing is written.
func (c *Collector) Collect(ctx context.Context) (models.Result, error) {
	generatedAt := c.now().UTC()

	containers, err := c.storage.ListContainers(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("bucket enumeration failed")
		return models.Result{}, fmt.Errorf("%w: %w: %w", ErrAggregationFailed, ErrEnumeration, err)
	}

	c.logger.Info().Int("buckets", len(containers)).Msg("collecting bucket usage")

	outcomes, err := c.listAll(ctx, containers)
	if err != nil {
		return models.Result{}, fmt.Errorf("%w: %w", ErrAggregationFailed, err)
	}

	run := models.Run{
		ArtifactID:  c.prefix + ArtifactID(generatedAt),
		GeneratedAt: generatedAt,
		Report:      models.UsageReport{},
	}
	for i, o := range outcomes {
		if o.err != nil {
			c.logger.Warn().Err(o.err).Str("bucket", containers[i].Name).Msg("skipping bucket")
			run.Skipped = append(run.Skipped, models.SkippedContainer{Name: containers[i].Name, Err: o.err})
			continue
		}
		c.logger.Debug().
			Str("bucket", o.usage.BucketName).
			Int64("objects", o.usage.ObjectCount).
			Int64("bytes", o.usage.SizeBytes).
			Msg("bucket usage")
		run.Report = append(run.Report, o.usage)
	}

	payload, err := json.Marshal(run.Report)
	if err != nil {
		return models.Result{}, fmt.Errorf("%w: encode report: %w", ErrAggregationFailed, err)
	}

	if err := c.storage.PutObject(ctx, run.ArtifactID, payload, ContentType); err != nil {
		c.logger.Error().Err(err).Str("artifact", run.ArtifactID).Msg("report upload failed")
		return models.Result{}, fmt.Errorf("%w: %w: %w", ErrAggregationFailed, ErrPersistence, err)
	}

	c.logger.Info().
		Str("artifact", run.ArtifactID).
		Int("buckets", len(run.Report)).
		Int("skipped", len(run.Skipped)).
		Msg("usage report stored")

	if c.recorder != nil {
		if err := c.recorder.RecordRun(ctx, run); err != nil {
			c.logger.Warn().Err(err).Msg("failed to record run history")
		}
	}

	return models.Result{
		ArtifactID:     run.ArtifactID,
		ContainerCount: len(run.Report),
		GeneratedAt:    generatedAt,
	}, nil
}

// listAll lists every bucket and returns one outcome per bucket, in the
// order of containers. Only context cancellation is returned as an error.
func (c *Collector) listAll(ctx context.Context, containers []models.Container) ([]outcome, error) {
	outcomes := make([]outcome, len(containers))

	if c.concurrency == 1 {
		for i, ct := range containers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outcomes[i] = c.listOne(ctx, ct.Name)
		}
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, ct := range containers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = c.listOne(gctx, ct.Name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (c *Collector) listOne(ctx context.Context, name string) outcome {
	entries, err := c.storage.ListObjects(ctx, name)
	if err != nil {
		return outcome{err: err}
	}
	return outcome{usage: Aggregate(name, entries)}
}
