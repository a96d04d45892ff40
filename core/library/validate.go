package library

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"mediavault/model"

	"github.com/google/uuid"
)

// ClientItem is one library record as a device presents it during sync.
type ClientItem struct {
	ID              string   `json:"id"`
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	ThumbnailURL    string   `json:"thumbnailUrl,omitempty"`
	DurationSeconds int64    `json:"durationSeconds"`
	Category        string   `json:"category"`
	SourcePlatform  string   `json:"sourcePlatform"`
	Quality         string   `json:"quality,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	IsFavorite      bool     `json:"isFavorite"`
	PlaybackSpeed   float64  `json:"playbackSpeed"`
}

const (
	maxTitleLength    = 255
	minPlaybackSpeed  = 0.25
	maxPlaybackSpeed  = 2.0
	maxDeviceIDLength = 100
)

// validateItem checks the structural rules for one batch item. It does not
// touch storage; dedup conflicts are only detectable inside the transaction.
func validateItem(index int, item *ClientItem) []FieldError {
	var errs []FieldError
	add := func(field, reason string) {
		errs = append(errs, FieldError{Index: index, Field: field, Reason: reason})
	}

	if item.ID == "" {
		add("id", "is required")
	} else if _, err := uuid.Parse(item.ID); err != nil {
		add("id", "must be a valid UUID")
	}

	if item.URL == "" {
		add("url", "is required")
	} else if _, err := NormalizeURL(item.URL); err != nil {
		add("url", "must be a valid http(s) URL")
	}

	if item.Title == "" {
		add("title", "is required")
	} else if utf8.RuneCountInString(item.Title) > maxTitleLength {
		add("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}

	if item.DurationSeconds < 0 {
		add("durationSeconds", "must not be negative")
	}

	if !slices.Contains(model.AllowedCategories, item.Category) {
		add("category", "is not an allowed category")
	}
	if !slices.Contains(model.AllowedPlatforms, item.SourcePlatform) {
		add("sourcePlatform", "is not an allowed platform")
	}

	if item.PlaybackSpeed < minPlaybackSpeed || item.PlaybackSpeed > maxPlaybackSpeed {
		add("playbackSpeed", fmt.Sprintf("must be between %g and %g", minPlaybackSpeed, maxPlaybackSpeed))
	}

	return errs
}

// newRecord maps a validated client item onto a storable record, computing
// the dedup fingerprint from the normalized locator.
func newRecord(userID int64, item *ClientItem) (*model.Media, error) {
	normalized, err := NormalizeURL(item.URL)
	if err != nil {
		return nil, err
	}
	hash := Fingerprint(userID, normalized)

	return &model.Media{
		ID:              item.ID,
		UserID:          userID,
		URL:             item.URL,
		URLHash:         &hash,
		Title:           item.Title,
		Description:     item.Description,
		ThumbnailURL:    item.ThumbnailURL,
		DurationSeconds: item.DurationSeconds,
		Category:        item.Category,
		SourcePlatform:  item.SourcePlatform,
		Quality:         item.Quality,
		Tags:            model.StringList(item.Tags),
		IsFavorite:      item.IsFavorite,
		PlaybackSpeed:   item.PlaybackSpeed,
	}, nil
}

// BuildRecord validates a single item outside a sync batch and maps it to a
// storable record.
func BuildRecord(userID int64, item *ClientItem) (*model.Media, *ValidationError) {
	if errs := validateItem(0, item); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	m, err := newRecord(userID, item)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{
			{Index: 0, Field: "url", Reason: "must be a valid http(s) URL"},
		}}
	}
	return m, nil
}

// validateBatch runs every structural check before the transaction opens.
func validateBatch(deviceID string, items []ClientItem, maxItems int) *ValidationError {
	var fields []FieldError

	if deviceID == "" {
		fields = append(fields, FieldError{Index: -1, Field: "deviceId", Reason: "is required"})
	} else if len(deviceID) > maxDeviceIDLength {
		fields = append(fields, FieldError{Index: -1, Field: "deviceId",
			Reason: fmt.Sprintf("must be at most %d characters", maxDeviceIDLength)})
	}

	if maxItems > 0 && len(items) > maxItems {
		fields = append(fields, FieldError{Index: -1, Field: "mediaItems",
			Reason: fmt.Sprintf("exceeds the maximum of %d items per sync", maxItems)})
	}

	for i := range items {
		fields = append(fields, validateItem(i, &items[i])...)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
