package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thannaske/s3report/pkg/config"
	"github.com/thannaske/s3report/pkg/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, models.DriverAWS, cfg.Driver)
	assert.Equal(t, config.DefaultRegion, cfg.S3Region)
	assert.Equal(t, config.DefaultReportBucket, cfg.ReportBucket)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, config.DefaultSchedule, cfg.Schedule)
	assert.NotEmpty(t, cfg.DBPath)
	assert.NoError(t, config.Validate(cfg))
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s3report.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver: minio
endpoint: http://file:9000
access-key: file-key
secret-key: file-secret
report-bucket: from-file
concurrency: 4
`), 0o600))

	t.Setenv("S3_ENDPOINT", "http://env:9000")
	t.Setenv("S3_CONCURRENCY", "8")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("endpoint", "", "")
	flags.Int("concurrency", 1, "")
	flags.String("report-bucket", "", "")
	require.NoError(t, flags.Parse([]string{"--concurrency=2"}))

	v := viper.New()
	require.NoError(t, v.BindPFlags(flags))

	cfg, err := config.Load(v, path)
	require.NoError(t, err)

	assert.Equal(t, models.DriverMinio, cfg.Driver)
	assert.Equal(t, "http://env:9000", cfg.S3Endpoint, "env beats file")
	assert.Equal(t, 2, cfg.Concurrency, "flag beats env")
	assert.Equal(t, "from-file", cfg.ReportBucket, "file beats flag default")
	assert.Equal(t, "file-key", cfg.S3AccessKey)
	assert.NoError(t, config.Validate(cfg))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := models.Config{Driver: models.DriverAWS, ReportBucket: "r", Concurrency: 1}

	tests := []struct {
		name   string
		mutate func(*models.Config)
		want   error
	}{
		{"valid aws with default chain", func(*models.Config) {}, nil},
		{"aws static keys", func(c *models.Config) { c.S3AccessKey, c.S3SecretKey = "k", "s" }, nil},
		{"aws half keys", func(c *models.Config) { c.S3AccessKey = "k" }, config.ErrMissingCredentials},
		{"no report bucket", func(c *models.Config) { c.ReportBucket = "" }, config.ErrMissingReportBucket},
		{"zero concurrency", func(c *models.Config) { c.Concurrency = 0 }, config.ErrInvalidConcurrency},
		{"unknown driver", func(c *models.Config) { c.Driver = "gcs" }, config.ErrUnknownDriver},
		{"minio without endpoint", func(c *models.Config) {
			c.Driver, c.S3AccessKey, c.S3SecretKey = models.DriverMinio, "k", "s"
		}, config.ErrMissingCredentials},
		{"ceph without keys", func(c *models.Config) {
			c.Driver, c.S3Endpoint = models.DriverCeph, "http://rgw:7480"
		}, config.ErrMissingCredentials},
		{"minio complete", func(c *models.Config) {
			c.Driver, c.S3Endpoint, c.S3AccessKey, c.S3SecretKey = models.DriverMinio, "localhost:9000", "k", "s"
		}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := config.Validate(cfg)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
