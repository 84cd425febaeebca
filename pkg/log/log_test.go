package log_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thannaske/s3report/pkg/log"
)

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := log.New(log.Options{Level: "WARN", Console: &buf})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("bucket", "a").Msg("skipping bucket")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "skipping bucket")
	assert.Contains(t, buf.String(), "bucket=")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := log.New(log.Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s3report.log")
	var buf bytes.Buffer
	logger, err := log.New(log.Options{File: path, Console: &buf})
	require.NoError(t, err)

	logger.Info().Str("artifact", "s3-usage-2024-03-01.json").Msg("usage report stored")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"artifact":"s3-usage-2024-03-01.json"`)
	assert.Contains(t, string(data), `"message":"usage report stored"`)
}
