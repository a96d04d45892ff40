package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mediavault/model"
)

// WatchHistoryRepository defines the data operations for playback progress.
type WatchHistoryRepository interface {
	Record(ctx context.Context, entry *model.WatchHistory) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.WatchHistory, error)
}

type mysqlWatchHistoryRepository struct {
	db *sql.DB
}

// NewMySQLWatchHistoryRepository creates a new watch history repository.
func NewMySQLWatchHistoryRepository(db *sql.DB) WatchHistoryRepository {
	return &mysqlWatchHistoryRepository{db: db}
}

func (r *mysqlWatchHistoryRepository) Record(ctx context.Context, entry *model.WatchHistory) error {
	now := time.Now().UTC()
	entry.CreatedAt = now
	if entry.WatchedAt.IsZero() {
		entry.WatchedAt = now
	}
	query := `INSERT INTO watch_history (user_id, media_id, watch_progress_seconds,
		is_completed, watched_at, device_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, entry.UserID, entry.MediaID,
		entry.WatchProgressSeconds, entry.IsCompleted, entry.WatchedAt,
		nullable(entry.DeviceID), entry.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to insert watch history: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (r *mysqlWatchHistoryRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.WatchHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, media_id, watch_progress_seconds, is_completed,
		watched_at, device_id, created_at
		FROM watch_history WHERE user_id = ? ORDER BY watched_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query watch history for user %d: %w", userID, err)
	}
	defer rows.Close()

	entries := make([]*model.WatchHistory, 0)
	for rows.Next() {
		entry := &model.WatchHistory{}
		var deviceID sql.NullString
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.MediaID,
			&entry.WatchProgressSeconds, &entry.IsCompleted, &entry.WatchedAt,
			&deviceID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watch history row: %w", err)
		}
		entry.DeviceID = deviceID.String
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during watch history rows iteration: %w", err)
	}
	return entries, nil
}
