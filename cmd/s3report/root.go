package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thannaske/s3report/pkg/config"
	"github.com/thannaske/s3report/pkg/log"
	"github.com/thannaske/s3report/pkg/models"
)

var (
	cfgFile string
	cfg     models.Config
	logger  zerolog.Logger
	v       = viper.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "s3report",
	Short: "Daily S3 bucket usage reports",
	Long: `A CLI tool that sums the object count and size of every bucket in an
S3 compatible object store and writes the result as a dated JSON report
(s3-usage-YYYY-MM-DD.json) back into the store. Every run is also recorded
in a local SQLite database to query historical usage.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		logger, err = log.New(log.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		return err
	},
}

// Execute adds all child commands to the root command and runs it
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("driver", config.DefaultDriver, "storage driver: aws, ceph or minio")
	flags.String("endpoint", "", "S3 endpoint URL (empty for AWS)")
	flags.String("access-key", "", "S3 access key")
	flags.String("secret-key", "", "S3 secret key")
	flags.String("region", config.DefaultRegion, "S3 region")
	flags.Bool("use-ssl", false, "use TLS for a minio endpoint given without scheme")
	flags.String("report-bucket", config.DefaultReportBucket, "bucket the report is written to")
	flags.String("report-prefix", "", "key prefix of the report")
	flags.Int("concurrency", config.DefaultConcurrency, "number of buckets listed in parallel")
	flags.String("db", config.DefaultDBPath(), "SQLite history database path, empty to disable")
	flags.String("log-level", config.DefaultLogLevel, "log level")
	flags.String("log-file", "", "also write JSON logs to this rotated file")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
}
