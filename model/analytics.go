package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DeviceBreakdown maps a device id to how many plays it reported that day.
type DeviceBreakdown map[string]int

// Value implements driver.Valuer.
func (b DeviceBreakdown) Value() (driver.Value, error) {
	if b == nil {
		return "{}", nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal device breakdown: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (b *DeviceBreakdown) Scan(src interface{}) error {
	if src == nil {
		*b = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for device breakdown: %T", src)
	}
	return json.Unmarshal(data, b)
}

// Analytics is one per-user, per-day usage aggregate row. Rows are upserted
// as watch history comes in and only ever summed for reporting.
type Analytics struct {
	ID                    int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID                int64           `json:"userId" gorm:"not null;uniqueIndex:idx_analytics_user_date,priority:1"`
	Date                  time.Time       `json:"date" gorm:"type:date;not null;uniqueIndex:idx_analytics_user_date,priority:2"`
	TotalDownloads        int             `json:"totalDownloads"`
	TotalWatchTimeSeconds int64           `json:"totalWatchTimeSeconds"`
	UniqueMediaWatched    int             `json:"uniqueMediaWatched"`
	MostWatchedCategory   string          `json:"mostWatchedCategory,omitempty" gorm:"size:50"`
	DeviceBreakdown       DeviceBreakdown `json:"deviceBreakdown" gorm:"type:json"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"-"`
}

// TableName keeps the plural-less historical name.
func (Analytics) TableName() string { return "analytics" }

// AnalyticsSummary is the aggregate returned by the summary endpoint.
type AnalyticsSummary struct {
	TotalDownloads      int              `json:"totalDownloads"`
	TotalWatchTimeHours float64          `json:"totalWatchTimeHours"`
	MostWatchedCategory string           `json:"mostWatchedCategory,omitempty"`
	UniqueMediaWatched  int              `json:"uniqueMediaWatched"`
	DailyBreakdown      []DailyAnalytics `json:"dailyBreakdown"`
}

// DailyAnalytics is one day inside an AnalyticsSummary.
type DailyAnalytics struct {
	Date             string `json:"date"`
	Downloads        int    `json:"downloads"`
	WatchTimeSeconds int64  `json:"watchTimeSeconds"`
}
