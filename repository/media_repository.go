package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediavault/model"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound is returned when a record does not exist or is not owned
	// by the requesting user.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateFingerprint is returned when an insert or update would
	// violate the (user_id, url_hash) uniqueness constraint, i.e. the same
	// user already bookmarked the same normalized URL under another id.
	ErrDuplicateFingerprint = errors.New("duplicate url fingerprint")
)

const mysqlDuplicateEntry = 1062

// isDuplicateEntry reports whether err is a MySQL unique constraint violation.
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// MediaListFilter narrows a library listing.
type MediaListFilter struct {
	Category string
	Search   string // matches title or description
	Page     int
	PerPage  int
}

// MediaTx is the transaction scope a merge runs in. All writes inside one
// merge happen through a single MediaTx; Commit or Rollback ends the scope.
type MediaTx interface {
	// Upsert matches by (user, id): inserts when absent, otherwise
	// overwrites every mutable field (last-write-wins). A fingerprint
	// collision with a different record returns ErrDuplicateFingerprint
	// and leaves the transaction usable.
	Upsert(m *model.Media) error
	// SoftDelete marks the given ids deleted for this user. Unknown,
	// foreign or already-deleted ids are silently skipped.
	SoftDelete(userID int64, ids []string) error
	// FindModifiedSince returns the user's live records whose updated_at
	// is strictly after since, oldest first.
	FindModifiedSince(userID int64, since time.Time) ([]model.MediaDelta, error)
	Commit() error
	Rollback()
}

// MediaRepository defines the data operations for library records.
type MediaRepository interface {
	BeginTx(ctx context.Context) (MediaTx, error)
	Create(ctx context.Context, m *model.Media) error
	GetByID(ctx context.Context, userID int64, id string) (*model.Media, error)
	List(ctx context.Context, userID int64, filter MediaListFilter) ([]*model.Media, int, error)
	Update(ctx context.Context, m *model.Media) error
	SoftDeleteOne(ctx context.Context, userID int64, id string) error
	FindModifiedSince(ctx context.Context, userID int64, since time.Time) ([]model.MediaDelta, error)
}

// mysqlMediaRepository implements MediaRepository for MySQL.
type mysqlMediaRepository struct {
	db *sql.DB
}

// NewMySQLMediaRepository creates a new media repository.
func NewMySQLMediaRepository(db *sql.DB) MediaRepository {
	return &mysqlMediaRepository{db: db}
}

const mediaColumns = `id, user_id, url, url_hash, title, description, thumbnail_url,
	duration_seconds, category, source_platform, quality, tags, is_favorite,
	playback_speed, created_at, updated_at`

func scanMedia(row interface{ Scan(...interface{}) error }) (*model.Media, error) {
	m := &model.Media{}
	var description, thumbnail, quality sql.NullString
	err := row.Scan(&m.ID, &m.UserID, &m.URL, &m.URLHash, &m.Title, &description,
		&thumbnail, &m.DurationSeconds, &m.Category, &m.SourcePlatform, &quality,
		&m.Tags, &m.IsFavorite, &m.PlaybackSpeed, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Description = description.String
	m.ThumbnailURL = thumbnail.String
	m.Quality = quality.String
	return m, nil
}

func (r *mysqlMediaRepository) BeginTx(ctx context.Context) (MediaTx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &mysqlMediaTx{tx: tx, ctx: ctx}, nil
}

func (r *mysqlMediaRepository) Create(ctx context.Context, m *model.Media) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	query := `INSERT INTO media (id, user_id, url, url_hash, title, description, thumbnail_url,
		duration_seconds, category, source_platform, quality, tags, is_favorite, playback_speed,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.UserID, m.URL, m.URLHash, m.Title, nullable(m.Description),
		nullable(m.ThumbnailURL), m.DurationSeconds, m.Category, m.SourcePlatform,
		nullable(m.Quality), m.Tags, m.IsFavorite, m.PlaybackSpeed,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateFingerprint
		}
		return fmt.Errorf("failed to insert media %s: %w", m.ID, err)
	}
	return nil
}

func (r *mysqlMediaRepository) GetByID(ctx context.Context, userID int64, id string) (*model.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media
		WHERE user_id = ? AND id = ? AND deleted_at IS NULL`
	m, err := scanMedia(r.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan media %s: %w", id, err)
	}
	return m, nil
}

func (r *mysqlMediaRepository) List(ctx context.Context, userID int64, filter MediaListFilter) ([]*model.Media, int, error) {
	where := []string{"user_id = ?", "deleted_at IS NULL"}
	args := []interface{}{userID}

	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		where = append(where, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}
	cond := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM media WHERE " + cond
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count media: %w", err)
	}

	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	offset := (filter.Page - 1) * filter.PerPage

	query := `SELECT ` + mediaColumns + ` FROM media WHERE ` + cond +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.PerPage, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query media for user %d: %w", userID, err)
	}
	defer rows.Close()

	items := make([]*model.Media, 0)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan media row: %w", err)
		}
		items = append(items, m)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error during media rows iteration: %w", err)
	}
	return items, total, nil
}

func (r *mysqlMediaRepository) Update(ctx context.Context, m *model.Media) error {
	m.UpdatedAt = time.Now().UTC()
	query := `UPDATE media SET title = ?, description = ?, category = ?, tags = ?,
		is_favorite = ?, playback_speed = ?, updated_at = ?
		WHERE user_id = ? AND id = ? AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, m.Title, nullable(m.Description),
		m.Category, m.Tags, m.IsFavorite, m.PlaybackSpeed, m.UpdatedAt, m.UserID, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update media %s: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either absent or the update was a no-op; distinguish with a read.
		if _, err := r.GetByID(ctx, m.UserID, m.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *mysqlMediaRepository) SoftDeleteOne(ctx context.Context, userID int64, id string) error {
	now := time.Now().UTC()
	// url_hash is cleared so a deleted bookmark no longer blocks the same
	// URL from being re-added under a new id.
	query := `UPDATE media SET deleted_at = ?, url_hash = NULL, updated_at = ?
		WHERE user_id = ? AND id = ? AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, now, now, userID, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete media %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mysqlMediaRepository) FindModifiedSince(ctx context.Context, userID int64, since time.Time) ([]model.MediaDelta, error) {
	return findModifiedSince(ctx, r.db, userID, since)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func findModifiedSince(ctx context.Context, q querier, userID int64, since time.Time) ([]model.MediaDelta, error) {
	query := `SELECT id, title, updated_at FROM media
		WHERE user_id = ? AND updated_at > ? AND deleted_at IS NULL
		ORDER BY updated_at ASC`
	rows, err := q.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query modified media for user %d: %w", userID, err)
	}
	defer rows.Close()

	deltas := make([]model.MediaDelta, 0)
	for rows.Next() {
		var id, title string
		var updatedAt time.Time
		if err := rows.Scan(&id, &title, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan media delta: %w", err)
		}
		deltas = append(deltas, model.MediaDelta{
			ID:        id,
			Title:     title,
			UpdatedAt: updatedAt.UnixMilli(),
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during delta rows iteration: %w", err)
	}
	return deltas, nil
}

// mysqlMediaTx implements MediaTx on top of *sql.Tx.
type mysqlMediaTx struct {
	tx  *sql.Tx
	ctx context.Context
}

func (t *mysqlMediaTx) Upsert(m *model.Media) error {
	var exists bool
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT EXISTS(SELECT 1 FROM media WHERE user_id = ? AND id = ?)`,
		m.UserID, m.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check media existence: %w", err)
	}

	now := time.Now().UTC()
	if exists {
		// Overwrite every mutable field; a soft-deleted record synced
		// again comes back to life.
		query := `UPDATE media SET url = ?, url_hash = ?, title = ?, description = ?,
			thumbnail_url = ?, duration_seconds = ?, category = ?, source_platform = ?,
			quality = ?, tags = ?, is_favorite = ?, playback_speed = ?,
			deleted_at = NULL, updated_at = ?
			WHERE user_id = ? AND id = ?`
		_, err = t.tx.ExecContext(t.ctx, query,
			m.URL, m.URLHash, m.Title, nullable(m.Description), nullable(m.ThumbnailURL),
			m.DurationSeconds, m.Category, m.SourcePlatform, nullable(m.Quality),
			m.Tags, m.IsFavorite, m.PlaybackSpeed, now, m.UserID, m.ID)
	} else {
		query := `INSERT INTO media (id, user_id, url, url_hash, title, description,
			thumbnail_url, duration_seconds, category, source_platform, quality, tags,
			is_favorite, playback_speed, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = t.tx.ExecContext(t.ctx, query,
			m.ID, m.UserID, m.URL, m.URLHash, m.Title, nullable(m.Description),
			nullable(m.ThumbnailURL), m.DurationSeconds, m.Category, m.SourcePlatform,
			nullable(m.Quality), m.Tags, m.IsFavorite, m.PlaybackSpeed, now, now)
	}
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateFingerprint
		}
		return fmt.Errorf("failed to upsert media %s: %w", m.ID, err)
	}
	m.UpdatedAt = now
	return nil
}

func (t *mysqlMediaTx) SoftDelete(userID int64, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := []interface{}{now, now, userID}
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE media SET deleted_at = ?, url_hash = NULL, updated_at = ?
		WHERE user_id = ? AND id IN (` + placeholders + `) AND deleted_at IS NULL`
	if _, err := t.tx.ExecContext(t.ctx, query, args...); err != nil {
		return fmt.Errorf("failed to soft delete media batch: %w", err)
	}
	return nil
}

func (t *mysqlMediaTx) FindModifiedSince(userID int64, since time.Time) ([]model.MediaDelta, error) {
	return findModifiedSince(t.ctx, t.tx, userID, since)
}

func (t *mysqlMediaTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *mysqlMediaTx) Rollback() {
	_ = t.tx.Rollback()
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
