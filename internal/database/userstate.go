package database

import (
	"context"
	"fmt"
	"time"

	"bitzomax/internal/mediatypes"
)

// GetCurrentUser returns the viewer's liked and favorite video ids and
// subscription flag.
func (d *Database) GetCurrentUser(ctx context.Context) (mediatypes.User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_user", start, err) }()

	user := mediatypes.User{LikedVideos: []string{}, FavoriteVideos: []string{}}

	d.mu.RLock()
	qctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	user.LikedVideos, err = d.videoIDs(qctx, "SELECT video_id FROM liked_videos ORDER BY created_at DESC, video_id")
	if err == nil {
		user.FavoriteVideos, err = d.videoIDs(qctx, "SELECT video_id FROM favorites ORDER BY created_at DESC, video_id")
	}
	cancel()
	d.mu.RUnlock()
	if err != nil {
		return user, err
	}

	user.IsSubscribed, err = d.IsSubscribed(ctx)
	return user, err
}

func (d *Database) videoIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ToggleLike flips the viewer's like on a video, keeps the video's like
// counter in step and returns whether the video is now liked.
func (d *Database) ToggleLike(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("toggle_like", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) > 0 FROM videos WHERE id = ?", id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		err = ErrNotFound
		return false, fmt.Errorf("video %s: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM liked_videos WHERE video_id = ?", id)
	if err != nil {
		return false, err
	}
	removed, _ := res.RowsAffected()

	liked := removed == 0
	if liked {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO liked_videos (video_id, created_at) VALUES (?, ?)", id, d.now().Unix()); err != nil {
			return false, err
		}
		_, err = tx.ExecContext(ctx, "UPDATE videos SET likes = likes + 1 WHERE id = ?", id)
	} else {
		_, err = tx.ExecContext(ctx, "UPDATE videos SET likes = MAX(likes - 1, 0) WHERE id = ?", id)
	}
	if err != nil {
		return false, err
	}

	err = tx.Commit()
	return liked, err
}

// AddFavorite adds a video to favorites. Adding twice is a no-op.
func (d *Database) AddFavorite(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("add_favorite", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO favorites (video_id, created_at) VALUES (?, ?)
		ON CONFLICT(video_id) DO NOTHING
	`, id, d.now().Unix())
	if err != nil {
		err = fmt.Errorf("add favorite %s: %w", id, err)
	}
	return err
}

// RemoveFavorite removes a video from favorites.
func (d *Database) RemoveFavorite(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("remove_favorite", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM favorites WHERE video_id = ?", id)
	return err
}

// GetFavorites returns the favorite videos, most recently added first.
func (d *Database) GetFavorites(ctx context.Context) ([]mediatypes.Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_favorites", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT v.id, v.title, v.description, v.video_url, v.thumbnail_url, v.duration, v.views, v.likes,
			v.is_premium, v.upload_date, v.original_format, v.conversion_status, v.size, v.is_visible
		FROM favorites f
		JOIN videos v ON v.id = f.video_id
		ORDER BY f.created_at DESC, v.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get favorites: %w", err)
	}
	defer rows.Close()

	videos := []mediatypes.Video{}
	for rows.Next() {
		var v mediatypes.Video
		if v, err = scanVideo(rows); err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	err = rows.Err()
	return videos, err
}

// RecordWatch appends a watch-history entry.
func (d *Database) RecordWatch(ctx context.Context, id string, seconds float64, completed bool) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_watch", start, err) }()

	if seconds < 0 {
		err = fmt.Errorf("invalid watch duration %v", seconds)
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO watch_history (video_id, watched_at, watch_duration, completed)
		VALUES (?, ?, ?, ?)
	`, id, d.now().UnixMilli(), seconds, boolToInt(completed))
	if err != nil {
		err = fmt.Errorf("record watch %s: %w", id, err)
	}
	return err
}

// WatchHistory returns up to limit entries, newest first.
func (d *Database) WatchHistory(ctx context.Context, limit int) ([]mediatypes.WatchRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("watch_history", start, err) }()

	if limit <= 0 || limit > 500 {
		limit = 50
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT video_id, watched_at, watch_duration, completed
		FROM watch_history
		ORDER BY watched_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []mediatypes.WatchRecord{}
	for rows.Next() {
		var r mediatypes.WatchRecord
		var watched int64
		var completed int
		if err = rows.Scan(&r.VideoID, &watched, &r.WatchDuration, &completed); err != nil {
			return nil, err
		}
		r.Timestamp = time.UnixMilli(watched).UTC()
		r.Completed = completed != 0
		history = append(history, r)
	}
	err = rows.Err()
	return history, err
}

// ClearWatchHistory deletes all watch-history entries.
func (d *Database) ClearWatchHistory(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("clear_watch_history", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM watch_history")
	return err
}
