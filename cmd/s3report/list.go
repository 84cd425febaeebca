package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/thannaske/s3report/pkg/db"
	"github.com/thannaske/s3report/pkg/models"
)

var (
	year     int
	month    int
	runLimit int
)

// formatSize converts bytes to a human-readable format
func formatSize(bytes float64) string {
	const (
		_          = iota
		KB float64 = 1 << (10 * iota)
		MB
		GB
		TB
		PB
	)

	switch {
	case bytes >= PB:
		return fmt.Sprintf("%.2f PB", bytes/PB)
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", bytes/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", bytes/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", bytes/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", bytes/KB)
	default:
		return fmt.Sprintf("%.0f bytes", bytes)
	}
}

// previousMonth returns the month before now
func previousMonth(now time.Time) (int, int) {
	if now.Month() == time.January {
		return now.Year() - 1, 12
	}
	return now.Year(), int(now.Month()) - 1
}

func openHistoryReadOnly() (*db.DB, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("no history database configured")
	}
	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := database.InitDB(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func renderTable(w io.Writer, data pterm.TableData) error {
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

func averagesTable(averages []models.MonthlyBucketAverage) pterm.TableData {
	sort.Slice(averages, func(i, j int) bool {
		return averages[i].AvgSizeBytes > averages[j].AvgSizeBytes
	})
	data := pterm.TableData{{"Bucket", "Size", "Objects", "Samples"}}
	for _, avg := range averages {
		data = append(data, []string{
			avg.BucketName,
			formatSize(avg.AvgSizeBytes),
			strconv.Itoa(int(avg.AvgObjectCount)),
			strconv.Itoa(avg.DataPoints),
		})
	}
	return data
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List monthly bucket usage",
	Long:  `Display monthly average usage statistics for all buckets. Defaults to the previous month.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		y, m := previousMonth(time.Now().UTC())
		if year != 0 {
			y = year
		}
		if month != 0 {
			m = month
		}
		if m < 1 || m > 12 {
			return fmt.Errorf("month must be between 1 and 12")
		}

		database, err := openHistoryReadOnly()
		if err != nil {
			return err
		}
		defer database.Close()

		averages, err := database.GetAllMonthlyAverages(y, m)
		if err != nil {
			return fmt.Errorf("error retrieving monthly averages: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(averages) == 0 {
			fmt.Fprintf(out, "No data available for %d-%02d\n", y, m)
			return nil
		}

		fmt.Fprintf(out, "Monthly Average Usage for %d-%02d\n\n", y, m)
		return renderTable(out, averagesTable(averages))
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [bucket-name]",
	Short: "Show usage history for a bucket",
	Long:  `Display the usage samples of one bucket over the last twelve months.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucketName := args[0]

		database, err := openHistoryReadOnly()
		if err != nil {
			return err
		}
		defer database.Close()

		now := time.Now().UTC()
		startTime := time.Date(now.Year()-1, now.Month(), 1, 0, 0, 0, 0, time.UTC)
		endTime := time.Date(now.Year(), now.Month()+1, 0, 23, 59, 59, 0, time.UTC)

		usages, err := database.GetBucketUsage(bucketName, startTime, endTime)
		if err != nil {
			return fmt.Errorf("error retrieving usage history: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(usages) == 0 {
			fmt.Fprintf(out, "No usage data available for bucket %s\n", bucketName)
			return nil
		}

		fmt.Fprintf(out, "Usage History for Bucket: %s\n\n", bucketName)
		data := pterm.TableData{{"Date", "Size", "Objects"}}
		for _, u := range usages {
			data = append(data, []string{
				u.Timestamp.UTC().Format("2006-01-02 15:04:05"),
				formatSize(float64(u.SizeBytes)),
				strconv.FormatInt(u.ObjectCount, 10),
			})
		}
		return renderTable(out, data)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent collection runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openHistoryReadOnly()
		if err != nil {
			return err
		}
		defer database.Close()

		runs, err := database.GetRuns(runLimit)
		if err != nil {
			return fmt.Errorf("error retrieving runs: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No collection runs recorded")
			return nil
		}

		data := pterm.TableData{{"Generated", "Artifact", "Buckets", "Skipped"}}
		for _, r := range runs {
			data = append(data, []string{
				r.GeneratedAt.UTC().Format(time.RFC3339),
				r.ArtifactID,
				strconv.Itoa(r.BucketCount),
				strconv.Itoa(r.SkippedCount),
			})
		}
		return renderTable(out, data)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(runsCmd)

	listCmd.Flags().IntVar(&year, "year", 0, "Year to query (default: year of the previous month)")
	listCmd.Flags().IntVar(&month, "month", 0, "Month to query (1-12, default: previous month)")
	runsCmd.Flags().IntVar(&runLimit, "limit", 30, "Number of runs to show")
}
