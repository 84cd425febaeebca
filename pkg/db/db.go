package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/thannaske/s3report/pkg/models"
)

// ErrNoAverage is returned when no monthly average exists for a bucket and month
var ErrNoAverage = errors.New("no monthly average available")

// DB represents the history database connection
type DB struct {
	*sql.DB
	now func() time.Time
}

// NewDB opens the SQLite database at dbPath
func NewDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, now: time.Now}, nil
}

// InitDB creates the tables if they do not exist yet
func (db *DB) InitDB() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS collection_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			artifact_id TEXT NOT NULL,
			bucket_count INTEGER NOT NULL,
			skipped_count INTEGER NOT NULL,
			generated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bucket_usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES collection_runs(id) ON DELETE CASCADE,
			bucket_name TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			object_count INTEGER NOT NULL,
			timestamp DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS monthly_averages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bucket_name TEXT NOT NULL,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			avg_size_bytes REAL NOT NULL,
			avg_object_count REAL NOT NULL,
			data_points INTEGER NOT NULL,
			UNIQUE(bucket_name, year, month)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bucket_usage_name_time
			ON bucket_usage(bucket_name, timestamp)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// RecordRun stores a collection run and one usage sample per reported bucket
func (db *DB) RecordRun(ctx context.Context, run models.Run) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO collection_runs (artifact_id, bucket_count, skipped_count, generated_at)
		VALUES (?, ?, ?, ?)
	`, run.ArtifactID, len(run.Report), len(run.Skipped), run.GeneratedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bucket_usage (run_id, bucket_name, size_bytes, object_count, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare usage insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range run.Report {
		if _, err := stmt.ExecContext(ctx, runID, u.BucketName, u.SizeBytes, u.ObjectCount, run.GeneratedAt.UTC()); err != nil {
			return fmt.Errorf("failed to store usage for bucket %s: %w", u.BucketName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRuns returns the most recent collection runs, newest first
func (db *DB) GetRuns(limit int) ([]models.CollectionRun, error) {
	rows, err := db.Query(`
		SELECT id, artifact_id, bucket_count, skipped_count, generated_at
		FROM collection_runs
		ORDER BY generated_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.CollectionRun
	for rows.Next() {
		var r models.CollectionRun
		if err := rows.Scan(&r.ID, &r.ArtifactID, &r.BucketCount, &r.SkippedCount, &r.GeneratedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetBucketUsage retrieves the usage samples of one bucket within a time range
func (db *DB) GetBucketUsage(bucketName string, startTime, endTime time.Time) ([]models.BucketUsage, error) {
	rows, err := db.Query(`
		SELECT id, run_id, bucket_name, size_bytes, object_count, timestamp
		FROM bucket_usage
		WHERE bucket_name = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp
	`, bucketName, startTime.UTC(), endTime.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []models.BucketUsage
	for rows.Next() {
		var u models.BucketUsage
		if err := rows.Scan(&u.ID, &u.RunID, &u.BucketName, &u.SizeBytes, &u.ObjectCount, &u.Timestamp); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

// CalculateMonthlyAverages averages every bucket's samples of the given month
// and upserts the result
func (db *DB) CalculateMonthlyAverages(year, month int) error {
	startDate := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	endDate := startDate.AddDate(0, 1, 0)

	_, err := db.Exec(`
		INSERT INTO monthly_averages
			(bucket_name, year, month, avg_size_bytes, avg_object_count, data_points)
		SELECT bucket_name, ?, ?, AVG(size_bytes), AVG(object_count), COUNT(*)
		FROM bucket_usage
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY bucket_name
		ON CONFLICT(bucket_name, year, month)
		DO UPDATE SET
			avg_size_bytes = excluded.avg_size_bytes,
			avg_object_count = excluded.avg_object_count,
			data_points = excluded.data_points
	`, year, month, startDate, endDate)
	if err != nil {
		return fmt.Errorf("failed to calculate averages for %d-%02d: %w", year, month, err)
	}
	return nil
}

// GetMonthlyAverage gets the monthly average for a specific bucket
func (db *DB) GetMonthlyAverage(bucketName string, year, month int) (*models.MonthlyBucketAverage, error) {
	var avg models.MonthlyBucketAverage
	err := db.QueryRow(`
		SELECT bucket_name, year, month, avg_size_bytes, avg_object_count, data_points
		FROM monthly_averages
		WHERE bucket_name = ? AND year = ? AND month = ?
	`, bucketName, year, month).Scan(
		&avg.BucketName, &avg.Year, &avg.Month,
		&avg.AvgSizeBytes, &avg.AvgObjectCount, &avg.DataPoints,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for bucket %s in %d-%02d", ErrNoAverage, bucketName, year, month)
	}
	if err != nil {
		return nil, err
	}
	return &avg, nil
}

// GetAllMonthlyAverages gets all monthly averages for a specific month
func (db *DB) GetAllMonthlyAverages(year, month int) ([]models.MonthlyBucketAverage, error) {
	rows, err := db.Query(`
		SELECT bucket_name, year, month, avg_size_bytes, avg_object_count, data_points
		FROM monthly_averages
		WHERE year = ? AND month = ?
		ORDER BY bucket_name
	`, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var averages []models.MonthlyBucketAverage
	for rows.Next() {
		var avg models.MonthlyBucketAverage
		if err := rows.Scan(
			&avg.BucketName, &avg.Year, &avg.Month,
			&avg.AvgSizeBytes, &avg.AvgObjectCount, &avg.DataPoints,
		); err != nil {
			return nil, err
		}
		averages = append(averages, avg)
	}
	return averages, rows.Err()
}

// PruneOldData removes usage samples and runs from completed months that
// already have monthly averages. The current month is never touched.
func (db *DB) PruneOldData() (int64, error) {
	now := db.now().UTC()
	currentMonthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT DISTINCT year, month FROM monthly_averages ORDER BY year, month`)
	if err != nil {
		return 0, fmt.Errorf("failed to query monthly averages: %w", err)
	}

	var completedMonths []time.Time
	for rows.Next() {
		var year, month int
		if err := rows.Scan(&year, &month); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan monthly average row: %w", err)
		}
		monthStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		if monthStart.Before(currentMonthStart) {
			completedMonths = append(completedMonths, monthStart)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("error iterating monthly average rows: %w", err)
	}
	rows.Close()

	var totalDeleted int64
	for _, monthStart := range completedMonths {
		monthEnd := monthStart.AddDate(0, 1, 0).Add(-time.Second)

		result, err := tx.Exec(`
			DELETE FROM bucket_usage
			WHERE timestamp >= ? AND timestamp <= ?
		`, monthStart, monthEnd)
		if err != nil {
			return 0, fmt.Errorf("failed to delete data points for %s: %w", monthStart.Format("2006-01"), err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		totalDeleted += n

		if _, err := tx.Exec(`
			DELETE FROM collection_runs
			WHERE generated_at >= ? AND generated_at <= ?
		`, monthStart, monthEnd); err != nil {
			return 0, fmt.Errorf("failed to delete runs for %s: %w", monthStart.Format("2006-01"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return totalDeleted, nil
}
