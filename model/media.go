package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Allowed values for Media.Category and Media.SourcePlatform.
var (
	AllowedCategories = []string{
		"music", "podcast", "tutorial", "entertainment",
		"documentary", "sports", "news", "uncategorized",
	}
	AllowedPlatforms = []string{"youtube", "soundcloud", "vimeo"}
)

// StringList stores a JSON array of strings in a single column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for string list: %T", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}

// Media represents one bookmarked media entry in a user's library.
// The ID is assigned by the client that first created the entry and stays
// stable across devices; uniqueness within a library is enforced by the
// (UserID, URLHash) fingerprint, not by the ID.
type Media struct {
	ID              string     `json:"id" gorm:"type:char(36);primaryKey"`
	UserID          int64      `json:"userId" gorm:"not null;uniqueIndex:idx_media_user_hash,priority:1;index:idx_media_user_updated,priority:1"`
	URL             string     `json:"url" gorm:"type:text;not null"`
	URLHash         *string    `json:"-" gorm:"type:char(64);uniqueIndex:idx_media_user_hash,priority:2"`
	Title           string     `json:"title" gorm:"size:255;not null"`
	Description     string     `json:"description,omitempty" gorm:"type:text"`
	ThumbnailURL    string     `json:"thumbnailUrl,omitempty" gorm:"type:text"`
	DurationSeconds int64      `json:"durationSeconds"`
	Category        string     `json:"category" gorm:"size:50;default:uncategorized"`
	SourcePlatform  string     `json:"sourcePlatform" gorm:"size:50;default:youtube"`
	Quality         string     `json:"quality,omitempty" gorm:"size:20"`
	Tags            StringList `json:"tags" gorm:"type:json"`
	IsFavorite      bool       `json:"isFavorite"`
	PlaybackSpeed   float64    `json:"playbackSpeed" gorm:"default:1.0"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt" gorm:"index:idx_media_user_updated,priority:2"`
	DeletedAt       *time.Time `json:"-" gorm:"index"`
}

// TableName overrides the default pluralization ("media" is already plural).
func (Media) TableName() string { return "media" }

// MediaDelta is the projection of a record returned to syncing devices:
// enough to tell the client something changed without shipping the payload.
type MediaDelta struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updatedAt"` // unix milliseconds
}
