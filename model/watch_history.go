package model

import "time"

// WatchHistory records playback progress reported by a device.
type WatchHistory struct {
	ID                   int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID               int64     `json:"userId" gorm:"not null;index:idx_history_user_watched,priority:1"`
	MediaID              string    `json:"mediaId" gorm:"type:char(36);not null;index"`
	WatchProgressSeconds int64     `json:"watchProgressSeconds"`
	IsCompleted          bool      `json:"isCompleted"`
	WatchedAt            time.Time `json:"watchedAt" gorm:"not null;index:idx_history_user_watched,priority:2"`
	DeviceID             string    `json:"deviceId,omitempty" gorm:"size:100"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"-"`
}

// TableName keeps the singular historical name.
func (WatchHistory) TableName() string { return "watch_history" }
