package library

import (
	"context"
	"errors"
	"time"

	"mediavault/logger"
	"mediavault/model"
	"mediavault/repository"
)

// Engine reconciles batches of device-side mutations against the server
// library. One Merge call is one transaction: every upsert and deletion in
// the batch commits together or not at all, while individual item conflicts
// are counted without aborting the batch.
type Engine struct {
	media    repository.MediaRepository
	audit    repository.SyncLogRepository
	maxItems int
}

// NewEngine creates a sync engine. maxItems bounds the batch size; zero
// disables the bound.
func NewEngine(media repository.MediaRepository, audit repository.SyncLogRepository, maxItems int) *Engine {
	return &Engine{media: media, audit: audit, maxItems: maxItems}
}

// MergeResult is what a device gets back from one sync call. ServerUpdates
// may echo records this same call just wrote; consumers are expected to
// apply it idempotently.
type MergeResult struct {
	SyncedCount   int                `json:"syncedCount"`
	FailedCount   int                `json:"failedCount"`
	ServerUpdates []model.MediaDelta `json:"serverUpdates"`
}

// Merge applies a device's pending items and deletions, then computes the
// reverse delta of everything modified after watermarkMs.
//
// Error contract: a *ValidationError means the batch was rejected before
// any transaction opened; an *InfrastructureError means the store failed
// and nothing was applied. Per-item fingerprint conflicts never surface as
// errors, they are counted in FailedCount and the batch continues.
func (e *Engine) Merge(ctx context.Context, userID int64, deviceID string, items []ClientItem, deletedIDs []string, watermarkMs int64) (*MergeResult, error) {
	if verr := validateBatch(deviceID, items, e.maxItems); verr != nil {
		return nil, verr
	}

	tx, err := e.media.BeginTx(ctx)
	if err != nil {
		return nil, &InfrastructureError{Err: err}
	}

	result := &MergeResult{}
	var conflictIDs []string

	for i := range items {
		item := &items[i]
		record, err := newRecord(userID, item)
		if err != nil {
			// Should not happen past validation; count it like any other
			// per-item rejection rather than aborting the batch.
			result.FailedCount++
			conflictIDs = append(conflictIDs, item.ID)
			continue
		}

		if err := tx.Upsert(record); err != nil {
			if errors.Is(err, repository.ErrDuplicateFingerprint) {
				// The same URL already lives in this library under a
				// different id. Keep the existing record, count the item.
				result.FailedCount++
				conflictIDs = append(conflictIDs, item.ID)
				continue
			}
			tx.Rollback()
			return nil, &InfrastructureError{Err: err}
		}
		result.SyncedCount++
	}

	if err := tx.SoftDelete(userID, deletedIDs); err != nil {
		tx.Rollback()
		return nil, &InfrastructureError{Err: err}
	}

	watermark := time.UnixMilli(watermarkMs).UTC()
	updates, err := tx.FindModifiedSince(userID, watermark)
	if err != nil {
		tx.Rollback()
		return nil, &InfrastructureError{Err: err}
	}
	result.ServerUpdates = updates

	if err := tx.Commit(); err != nil {
		return nil, &InfrastructureError{Err: err}
	}

	e.appendAudit(ctx, userID, deviceID, watermarkMs, result, conflictIDs)
	return result, nil
}

// appendAudit writes the audit entry for a committed merge. The audit sink
// is outside the merge transaction: a failed append is logged, never
// surfaced, since the merge itself already committed.
func (e *Engine) appendAudit(ctx context.Context, userID int64, deviceID string, watermarkMs int64, result *MergeResult, conflictIDs []string) {
	syncType := model.SyncTypeIncremental
	if watermarkMs == 0 {
		syncType = model.SyncTypeFull
	}
	status := model.SyncStatusSuccess
	var details *model.SyncErrorDetails
	if result.FailedCount > 0 {
		status = model.SyncStatusPartial
		details = &model.SyncErrorDetails{
			FailedCount: result.FailedCount,
			ConflictIDs: conflictIDs,
		}
	}

	entry := &model.SyncLog{
		UserID:       userID,
		DeviceID:     deviceID,
		SyncType:     syncType,
		ItemsSynced:  result.SyncedCount,
		Status:       status,
		ErrorDetails: details,
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		logger.Warn("failed to append sync audit entry",
			logger.Int64("userId", userID),
			logger.String("deviceId", deviceID),
			logger.ErrorField(err))
	}
}
