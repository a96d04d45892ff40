package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Sync classification and outcome values stored in sync_logs.
const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"

	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
)

// SyncErrorDetails holds the structured failure detail of a merge attempt.
type SyncErrorDetails struct {
	FailedCount int      `json:"failedCount"`
	ConflictIDs []string `json:"conflictIds,omitempty"`
}

// Value implements driver.Valuer.
func (d SyncErrorDetails) Value() (driver.Value, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sync error details: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (d *SyncErrorDetails) Scan(src interface{}) error {
	if src == nil {
		*d = SyncErrorDetails{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for sync error details: %T", src)
	}
	return json.Unmarshal(data, d)
}

// SyncLog is one immutable audit entry per merge attempt. The engine appends
// entries and never updates or deletes them; pruning is an operational task
// outside this codebase.
type SyncLog struct {
	ID           int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       int64             `json:"userId" gorm:"not null;index:idx_sync_logs_user_created,priority:1"`
	DeviceID     string            `json:"deviceId" gorm:"size:100;not null"`
	SyncType     string            `json:"syncType" gorm:"size:20;not null"`
	ItemsSynced  int               `json:"itemsSynced"`
	Status       string            `json:"status" gorm:"size:20;not null"`
	ErrorDetails *SyncErrorDetails `json:"errorDetails,omitempty" gorm:"type:json"`
	CreatedAt    time.Time         `json:"createdAt" gorm:"index:idx_sync_logs_user_created,priority:2"`
}
