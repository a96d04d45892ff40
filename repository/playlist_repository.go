package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mediavault/model"
)

// PlaylistRepository defines the data operations for playlists and their
// membership. Membership mutations run in their own transaction together
// with the aggregate recompute, so item_count and total_duration_seconds
// never drift from the join table for longer than a failed request.
type PlaylistRepository interface {
	Create(ctx context.Context, p *model.Playlist) error
	ListByUser(ctx context.Context, userID int64) ([]*model.Playlist, error)
	GetByID(ctx context.Context, userID int64, id string) (*model.Playlist, error)
	Update(ctx context.Context, p *model.Playlist) error
	SoftDelete(ctx context.Context, userID int64, id string) error
	AddMedia(ctx context.Context, userID int64, playlistID string, mediaIDs []string) error
	RemoveMedia(ctx context.Context, userID int64, playlistID, mediaID string) error
}

type mysqlPlaylistRepository struct {
	db *sql.DB
}

// NewMySQLPlaylistRepository creates a new playlist repository.
func NewMySQLPlaylistRepository(db *sql.DB) PlaylistRepository {
	return &mysqlPlaylistRepository{db: db}
}

const playlistColumns = `id, user_id, name, description, is_public, item_count,
	total_duration_seconds, created_at, updated_at`

func scanPlaylist(row interface{ Scan(...interface{}) error }) (*model.Playlist, error) {
	p := &model.Playlist{}
	var description sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &description, &p.IsPublic,
		&p.ItemCount, &p.TotalDurationSeconds, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	return p, nil
}

func (r *mysqlPlaylistRepository) Create(ctx context.Context, p *model.Playlist) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	query := `INSERT INTO playlists (id, user_id, name, description, is_public,
		item_count, total_duration_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.UserID, p.Name,
		nullable(p.Description), p.IsPublic, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert playlist %s: %w", p.ID, err)
	}
	return nil
}

func (r *mysqlPlaylistRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists
		WHERE user_id = ? AND deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists for user %d: %w", userID, err)
	}
	defer rows.Close()

	playlists := make([]*model.Playlist, 0)
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist row: %w", err)
		}
		playlists = append(playlists, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during playlist rows iteration: %w", err)
	}
	return playlists, nil
}

func (r *mysqlPlaylistRepository) GetByID(ctx context.Context, userID int64, id string) (*model.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists
		WHERE user_id = ? AND id = ? AND deleted_at IS NULL`
	p, err := scanPlaylist(r.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan playlist %s: %w", id, err)
	}

	itemsQuery := `SELECT pm.media_id, pm.position, pm.created_at,
			m.title, m.thumbnail_url, m.duration_seconds
		FROM playlist_media pm
		JOIN media m ON m.id = pm.media_id AND m.deleted_at IS NULL
		WHERE pm.playlist_id = ?
		ORDER BY pm.position ASC`
	rows, err := r.db.QueryContext(ctx, itemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist items for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry model.PlaylistEntry
		var thumbnail sql.NullString
		if err := rows.Scan(&entry.MediaID, &entry.Position, &entry.CreatedAt,
			&entry.Title, &thumbnail, &entry.DurationSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan playlist item: %w", err)
		}
		entry.ThumbnailURL = thumbnail.String
		entry.PlaylistID = id
		p.Items = append(p.Items, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during playlist item rows iteration: %w", err)
	}
	return p, nil
}

func (r *mysqlPlaylistRepository) Update(ctx context.Context, p *model.Playlist) error {
	p.UpdatedAt = time.Now().UTC()
	query := `UPDATE playlists SET name = ?, description = ?, is_public = ?, updated_at = ?
		WHERE user_id = ? AND id = ? AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, p.Name, nullable(p.Description),
		p.IsPublic, p.UpdatedAt, p.UserID, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update playlist %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, p.UserID, p.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *mysqlPlaylistRepository) SoftDelete(ctx context.Context, userID int64, id string) error {
	now := time.Now().UTC()
	query := `UPDATE playlists SET deleted_at = ?, updated_at = ?
		WHERE user_id = ? AND id = ? AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, now, now, userID, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete playlist %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mysqlPlaylistRepository) AddMedia(ctx context.Context, userID int64, playlistID string, mediaIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.lockOwnedPlaylist(ctx, tx, userID, playlistID); err != nil {
		return err
	}

	var maxPosition sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(position) FROM playlist_media WHERE playlist_id = ?`,
		playlistID).Scan(&maxPosition)
	if err != nil {
		return fmt.Errorf("failed to read max playlist position: %w", err)
	}
	next := int(maxPosition.Int64) + 1
	if !maxPosition.Valid {
		next = 0
	}

	now := time.Now().UTC()
	for i, mediaID := range mediaIDs {
		// Existing members keep their position; only new rows are appended.
		_, err := tx.ExecContext(ctx,
			`INSERT IGNORE INTO playlist_media (playlist_id, media_id, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			playlistID, mediaID, next+i, now, now)
		if err != nil {
			return fmt.Errorf("failed to add media %s to playlist: %w", mediaID, err)
		}
	}

	if err := recomputePlaylistAggregates(ctx, tx, playlistID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit playlist update: %w", err)
	}
	return nil
}

func (r *mysqlPlaylistRepository) RemoveMedia(ctx context.Context, userID int64, playlistID, mediaID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.lockOwnedPlaylist(ctx, tx, userID, playlistID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM playlist_media WHERE playlist_id = ? AND media_id = ?`,
		playlistID, mediaID)
	if err != nil {
		return fmt.Errorf("failed to remove media %s from playlist: %w", mediaID, err)
	}

	if err := recomputePlaylistAggregates(ctx, tx, playlistID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit playlist update: %w", err)
	}
	return nil
}

// lockOwnedPlaylist verifies ownership and takes a row lock so concurrent
// membership mutations serialize per playlist.
func (r *mysqlPlaylistRepository) lockOwnedPlaylist(ctx context.Context, tx *sql.Tx, userID int64, playlistID string) error {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM playlists WHERE user_id = ? AND id = ? AND deleted_at IS NULL FOR UPDATE`,
		userID, playlistID).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock playlist %s: %w", playlistID, err)
	}
	return nil
}

// recomputePlaylistAggregates rebuilds the denormalized counters from the
// membership table. Membership is the source of truth; the counters are a
// read-path convenience.
func recomputePlaylistAggregates(ctx context.Context, tx *sql.Tx, playlistID string) error {
	query := `UPDATE playlists SET
		item_count = (
			SELECT COUNT(*) FROM playlist_media pm
			JOIN media m ON m.id = pm.media_id AND m.deleted_at IS NULL
			WHERE pm.playlist_id = ?),
		total_duration_seconds = (
			SELECT COALESCE(SUM(m.duration_seconds), 0) FROM playlist_media pm
			JOIN media m ON m.id = pm.media_id AND m.deleted_at IS NULL
			WHERE pm.playlist_id = ?),
		updated_at = ?
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, playlistID, playlistID, time.Now().UTC(), playlistID); err != nil {
		return fmt.Errorf("failed to recompute playlist aggregates: %w", err)
	}
	return nil
}
