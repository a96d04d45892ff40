package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mediavault/model"
)

// SyncLogRepository is the append-only audit sink for merge attempts.
// Entries are written after the merge transaction commits and are never
// updated or deleted here.
type SyncLogRepository interface {
	Append(ctx context.Context, entry *model.SyncLog) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.SyncLog, error)
}

type mysqlSyncLogRepository struct {
	db *sql.DB
}

// NewMySQLSyncLogRepository creates a new sync log repository.
func NewMySQLSyncLogRepository(db *sql.DB) SyncLogRepository {
	return &mysqlSyncLogRepository{db: db}
}

func (r *mysqlSyncLogRepository) Append(ctx context.Context, entry *model.SyncLog) error {
	entry.CreatedAt = time.Now().UTC()
	query := `INSERT INTO sync_logs (user_id, device_id, sync_type, items_synced, status, error_details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	var details interface{}
	if entry.ErrorDetails != nil {
		details = *entry.ErrorDetails
	}
	res, err := r.db.ExecContext(ctx, query, entry.UserID, entry.DeviceID,
		entry.SyncType, entry.ItemsSynced, entry.Status, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (r *mysqlSyncLogRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, device_id, sync_type, items_synced, status, error_details, created_at
		FROM sync_logs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs for user %d: %w", userID, err)
	}
	defer rows.Close()

	entries := make([]*model.SyncLog, 0)
	for rows.Next() {
		entry := &model.SyncLog{}
		var details sql.NullString
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.DeviceID, &entry.SyncType,
			&entry.ItemsSynced, &entry.Status, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		if details.Valid {
			parsed := &model.SyncErrorDetails{}
			if err := parsed.Scan(details.String); err == nil {
				entry.ErrorDetails = parsed
			}
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during sync log rows iteration: %w", err)
	}
	return entries, nil
}
