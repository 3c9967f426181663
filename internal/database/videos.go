package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitzomax/internal/mediatypes"
	"bitzomax/internal/metrics"
)

// ListOptions filters and orders a catalog listing.
type ListOptions struct {
	Query         string
	Tag           string
	Premium       *bool
	IncludeHidden bool
	SortBy        mediatypes.SortField
	SortOrder     mediatypes.SortOrder
	Limit         int
	Offset        int
}

// VideoPage is one page of a catalog listing.
type VideoPage struct {
	Videos []mediatypes.Video `json:"videos"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

const videoColumns = `id, title, description, video_url, thumbnail_url, duration, views, likes,
	is_premium, upload_date, original_format, conversion_status, size, is_visible`

var sortColumns = map[mediatypes.SortField]string{
	mediatypes.SortByDate:  "upload_date",
	mediatypes.SortByViews: "views",
	mediatypes.SortByLikes: "likes",
	mediatypes.SortByTitle: "title COLLATE NOCASE",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (mediatypes.Video, error) {
	var v mediatypes.Video
	var premium, visible int
	var uploaded int64
	err := row.Scan(&v.ID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL,
		&v.Duration, &v.Views, &v.Likes, &premium, &uploaded,
		&v.OriginalFormat, &v.ConversionStatus, &v.Size, &visible)
	if err != nil {
		return v, err
	}
	v.IsPremium = premium != 0
	v.IsVisible = visible != 0
	v.UploadDate = time.Unix(uploaded, 0).UTC()
	v.Tags = []string{}
	return v, nil
}

// CreateVideo inserts v with its tags. UploadDate defaults to now.
func (d *Database) CreateVideo(ctx context.Context, v *mediatypes.Video) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_video", start, err) }()

	if v.ID == "" || strings.TrimSpace(v.Title) == "" {
		err = errors.New("video id and title are required")
		return err
	}
	if v.UploadDate.IsZero() {
		v.UploadDate = d.now().UTC().Truncate(time.Second)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO videos (id, title, description, video_url, thumbnail_url, duration, views, likes,
			is_premium, upload_date, original_format, conversion_status, size, is_visible)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.Title, v.Description, v.VideoURL, v.ThumbnailURL, v.Duration, v.Views, v.Likes,
		boolToInt(v.IsPremium), v.UploadDate.Unix(), v.OriginalFormat, v.ConversionStatus, v.Size,
		boolToInt(v.IsVisible))
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}

	if err = replaceTags(ctx, tx, v.ID, v.Tags); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

func replaceTags(ctx context.Context, tx *sql.Tx, videoID string, tags []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM video_tags WHERE video_id = ?", videoID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, tag := range NormalizeTags(tags) {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO video_tags (video_id, tag) VALUES (?, ?)", videoID, tag); err != nil {
			return fmt.Errorf("insert tag %q: %w", tag, err)
		}
	}
	return nil
}

// NormalizeTags trims, lowercases and de-duplicates tags, dropping empty ones.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#")))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// GetVideoByID returns one video with its tags.
func (d *Database) GetVideoByID(ctx context.Context, id string) (mediatypes.Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_video", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var v mediatypes.Video
	v, err = scanVideo(d.db.QueryRowContext(ctx, "SELECT "+videoColumns+" FROM videos WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return v, fmt.Errorf("video %s: %w", id, err)
	}
	if err != nil {
		return v, err
	}

	v.Tags, err = d.tagsFor(ctx, id)
	return v, err
}

func (d *Database) tagsFor(ctx context.Context, id string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT tag FROM video_tags WHERE video_id = ? ORDER BY tag", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ListVideos returns a filtered, sorted page of the catalog.
func (d *Database) ListVideos(ctx context.Context, opts ListOptions) (*VideoPage, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_videos", start, err) }()

	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var where []string
	var args []any
	if !opts.IncludeHidden {
		where = append(where, "is_visible = 1")
	}
	if opts.Query != "" {
		where = append(where, "(title LIKE ? OR description LIKE ?)")
		like := "%" + opts.Query + "%"
		args = append(args, like, like)
	}
	if opts.Tag != "" {
		where = append(where, "id IN (SELECT video_id FROM video_tags WHERE tag = ?)")
		args = append(args, strings.ToLower(strings.TrimSpace(opts.Tag)))
	}
	if opts.Premium != nil {
		where = append(where, "is_premium = ?")
		args = append(args, boolToInt(*opts.Premium))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	column, ok := sortColumns[opts.SortBy]
	if !ok {
		column = sortColumns[mediatypes.SortByDate]
	}
	order := "DESC"
	if opts.SortOrder == mediatypes.SortAsc {
		order = "ASC"
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	page := &VideoPage{Videos: []mediatypes.Video{}, Limit: opts.Limit, Offset: opts.Offset}
	if err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM videos"+clause, args...).Scan(&page.Total); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM videos%s ORDER BY %s %s, id LIMIT ? OFFSET ?",
		videoColumns, clause, column, order)
	rows, err := d.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var v mediatypes.Video
		if v, err = scanVideo(rows); err != nil {
			return nil, err
		}
		page.Videos = append(page.Videos, v)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i := range page.Videos {
		if page.Videos[i].Tags, err = d.tagsFor(ctx, page.Videos[i].ID); err != nil {
			return nil, err
		}
	}
	return page, nil
}

// VideoUpdate carries the editable fields of a video. Nil fields are left
// unchanged.
type VideoUpdate struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	IsPremium   *bool     `json:"isPremium"`
	IsVisible   *bool     `json:"isVisible"`
	Tags        *[]string `json:"tags"`
}

// UpdateVideo applies u to the video with id.
func (d *Database) UpdateVideo(ctx context.Context, id string, u VideoUpdate) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_video", start, err) }()

	var sets []string
	var args []any
	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			err = errors.New("title cannot be empty")
			return err
		}
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.IsPremium != nil {
		sets = append(sets, "is_premium = ?")
		args = append(args, boolToInt(*u.IsPremium))
	}
	if u.IsVisible != nil {
		sets = append(sets, "is_visible = ?")
		args = append(args, boolToInt(*u.IsVisible))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) > 0 FROM videos WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		err = ErrNotFound
		return fmt.Errorf("video %s: %w", id, err)
	}

	if len(sets) > 0 {
		_, err = tx.ExecContext(ctx, "UPDATE videos SET "+strings.Join(sets, ", ")+" WHERE id = ?", append(args, id)...)
		if err != nil {
			return err
		}
	}
	if u.Tags != nil {
		if err = replaceTags(ctx, tx, id, *u.Tags); err != nil {
			return err
		}
	}

	err = tx.Commit()
	return err
}

// DeleteVideo removes a video and everything that references it.
func (d *Database) DeleteVideo(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_video", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return fmt.Errorf("video %s: %w", id, err)
	}
	return nil
}

// UpdateDuration stores a corrected duration in seconds.
func (d *Database) UpdateDuration(ctx context.Context, id string, seconds float64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_duration", start, err) }()

	if seconds <= 0 {
		err = fmt.Errorf("invalid duration %v", seconds)
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "UPDATE videos SET duration = ? WHERE id = ?", seconds, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return fmt.Errorf("video %s: %w", id, err)
	}
	return nil
}

// IncrementViews bumps a video's view counter.
func (d *Database) IncrementViews(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("increment_views", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "UPDATE videos SET views = views + 1 WHERE id = ?", id)
	return err
}

// ConversionResult is the outcome of an upload's transcode.
type ConversionResult struct {
	Status   mediatypes.ConversionStatus
	VideoURL string
	Size     int64
	Duration float64
}

// SetConversionResult records how an upload ended up being stored.
func (d *Database) SetConversionResult(ctx context.Context, id string, r ConversionResult) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_conversion", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		UPDATE videos SET
			conversion_status = ?,
			video_url = CASE WHEN ? != '' THEN ? ELSE video_url END,
			size = CASE WHEN ? > 0 THEN ? ELSE size END,
			duration = CASE WHEN ? > 0 THEN ? ELSE duration END
		WHERE id = ?
	`, r.Status, r.VideoURL, r.VideoURL, r.Size, r.Size, r.Duration, r.Duration, id)
	return err
}

// RelatedVideos returns up to limit visible videos sharing tags with id,
// most shared tags first. Videos with no tag in common are excluded.
func (d *Database) RelatedVideos(ctx context.Context, id string, limit int) ([]mediatypes.Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("related_videos", start, err) }()

	if limit <= 0 {
		limit = 3
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT v.id, v.title, v.description, v.video_url, v.thumbnail_url, v.duration, v.views, v.likes,
			v.is_premium, v.upload_date, v.original_format, v.conversion_status, v.size, v.is_visible
		FROM videos v
		JOIN video_tags t ON t.video_id = v.id
		WHERE v.id != ? AND v.is_visible = 1
		  AND t.tag IN (SELECT tag FROM video_tags WHERE video_id = ?)
		GROUP BY v.id
		ORDER BY COUNT(*) DESC, v.upload_date DESC
		LIMIT ?
	`, id, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	related := []mediatypes.Video{}
	for rows.Next() {
		var v mediatypes.Video
		if v, err = scanVideo(rows); err != nil {
			return nil, err
		}
		related = append(related, v)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i := range related {
		if related[i].Tags, err = d.tagsFor(ctx, related[i].ID); err != nil {
			return nil, err
		}
	}
	return related, nil
}

// GetStats summarizes the catalog for the metrics collector.
func (d *Database) GetStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := metrics.Stats{VideosByStatus: map[string]int{}}
	rows, err := d.db.QueryContext(ctx, "SELECT conversion_status, COUNT(*) FROM videos GROUP BY conversion_status")
	if err != nil {
		return stats
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if rows.Scan(&status, &n) == nil && status != "" {
			stats.VideosByStatus[status] = n
		}
	}
	_ = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM videos WHERE is_premium = 1").Scan(&stats.PremiumVideos)
	return stats
}

// SetThumbnail stores the thumbnail URL of a video.
func (d *Database) SetThumbnail(ctx context.Context, id, url string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_thumbnail", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "UPDATE videos SET thumbnail_url = ? WHERE id = ?", url, id)
	return err
}
