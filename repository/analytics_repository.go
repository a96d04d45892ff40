package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"mediavault/model"
)

// AnalyticsRepository maintains the per-user daily usage aggregates.
type AnalyticsRepository interface {
	// RecordWatch folds one watch event into the user's row for the event's
	// date, creating the row if needed.
	RecordWatch(ctx context.Context, userID int64, day time.Time, seconds int64, category, deviceID string) error
	// Summary aggregates the rows between start and end (inclusive).
	Summary(ctx context.Context, userID int64, start, end time.Time) (*model.AnalyticsSummary, error)
}

type mysqlAnalyticsRepository struct {
	db *sql.DB
}

// NewMySQLAnalyticsRepository creates a new analytics repository.
func NewMySQLAnalyticsRepository(db *sql.DB) AnalyticsRepository {
	return &mysqlAnalyticsRepository{db: db}
}

func (r *mysqlAnalyticsRepository) RecordWatch(ctx context.Context, userID int64, day time.Time, seconds int64, category, deviceID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	date := day.UTC().Format("2006-01-02")
	row := tx.QueryRowContext(ctx,
		`SELECT id, device_breakdown FROM analytics WHERE user_id = ? AND date = ? FOR UPDATE`,
		userID, date)

	var id int64
	breakdown := model.DeviceBreakdown{}
	err = row.Scan(&id, &breakdown)
	now := time.Now().UTC()

	switch {
	case err == sql.ErrNoRows:
		if deviceID != "" {
			breakdown[deviceID] = 1
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO analytics (user_id, date, total_downloads, total_watch_time_seconds,
				unique_media_watched, most_watched_category, device_breakdown, created_at, updated_at)
			VALUES (?, ?, 0, ?, 1, ?, ?, ?, ?)`,
			userID, date, seconds, nullable(category), breakdown, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert analytics row: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read analytics row: %w", err)
	default:
		if deviceID != "" {
			breakdown[deviceID]++
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE analytics SET total_watch_time_seconds = total_watch_time_seconds + ?,
				unique_media_watched = unique_media_watched + 1,
				most_watched_category = ?, device_breakdown = ?, updated_at = ?
			WHERE id = ?`,
			seconds, nullable(category), breakdown, now, id)
		if err != nil {
			return fmt.Errorf("failed to update analytics row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analytics update: %w", err)
	}
	return nil
}

func (r *mysqlAnalyticsRepository) Summary(ctx context.Context, userID int64, start, end time.Time) (*model.AnalyticsSummary, error) {
	query := `SELECT date, total_downloads, total_watch_time_seconds,
		unique_media_watched, most_watched_category
		FROM analytics WHERE user_id = ? AND date BETWEEN ? AND ?
		ORDER BY date ASC`
	rows, err := r.db.QueryContext(ctx, query, userID,
		start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics for user %d: %w", userID, err)
	}
	defer rows.Close()

	summary := &model.AnalyticsSummary{DailyBreakdown: make([]model.DailyAnalytics, 0)}
	var totalWatchSeconds int64
	categoryCounts := make(map[string]int)

	for rows.Next() {
		var date time.Time
		var downloads, uniqueWatched int
		var watchSeconds int64
		var category sql.NullString
		if err := rows.Scan(&date, &downloads, &watchSeconds, &uniqueWatched, &category); err != nil {
			return nil, fmt.Errorf("failed to scan analytics row: %w", err)
		}

		summary.TotalDownloads += downloads
		summary.UniqueMediaWatched += uniqueWatched
		totalWatchSeconds += watchSeconds
		if category.Valid && category.String != "" {
			categoryCounts[category.String]++
		}
		summary.DailyBreakdown = append(summary.DailyBreakdown, model.DailyAnalytics{
			Date:             date.Format("2006-01-02"),
			Downloads:        downloads,
			WatchTimeSeconds: watchSeconds,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during analytics rows iteration: %w", err)
	}

	summary.TotalWatchTimeHours = math.Round(float64(totalWatchSeconds)/3600*100) / 100
	best := 0
	for category, count := range categoryCounts {
		if count > best {
			best = count
			summary.MostWatchedCategory = category
		}
	}
	return summary, nil
}
