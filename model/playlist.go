package model

import "time"

// Playlist is an ordered, user-owned collection of media entries.
// ItemCount and TotalDurationSeconds are denormalized caches recomputed from
// the membership table after every mutation; membership is the source of truth.
type Playlist struct {
	ID                   string     `json:"id" gorm:"type:char(36);primaryKey"`
	UserID               int64      `json:"userId" gorm:"not null;index:idx_playlists_user_created,priority:1"`
	Name                 string     `json:"name" gorm:"size:255;not null"`
	Description          string     `json:"description,omitempty" gorm:"type:text"`
	IsPublic             bool       `json:"isPublic"`
	ItemCount            int        `json:"itemCount"`
	TotalDurationSeconds int64      `json:"totalDurationSeconds"`
	CreatedAt            time.Time  `json:"createdAt" gorm:"index:idx_playlists_user_created,priority:2"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	DeletedAt            *time.Time `json:"-" gorm:"index"`

	// Loaded on demand, not a column.
	Items []PlaylistEntry `json:"items,omitempty" gorm:"-"`
}

// PlaylistEntry is one row of the playlist membership join table. Position
// values only need to be totally orderable within a playlist; gaps are fine.
type PlaylistEntry struct {
	ID         int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	PlaylistID string    `json:"-" gorm:"type:char(36);not null;uniqueIndex:idx_playlist_media,priority:1"`
	MediaID    string    `json:"mediaId" gorm:"type:char(36);not null;uniqueIndex:idx_playlist_media,priority:2"`
	Position   int       `json:"position" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"addedAt"`
	UpdatedAt  time.Time `json:"-"`

	// Joined from the media table when listing a playlist.
	Title           string `json:"title" gorm:"-"`
	ThumbnailURL    string `json:"thumbnailUrl,omitempty" gorm:"-"`
	DurationSeconds int64  `json:"durationSeconds" gorm:"-"`
}

// TableName keeps the historical join table name.
func (PlaylistEntry) TableName() string { return "playlist_media" }
