package database

import (
	"context"
	"time"
)

// TranscodeRecord is the persisted outcome of a transcode job.
type TranscodeRecord struct {
	JobID      string    `json:"jobId"`
	VideoID    string    `json:"videoId"`
	State      string    `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	InputSize  int64     `json:"inputSize"`
	OutputSize int64     `json:"outputSize"`
	Bitrate    int       `json:"bitrate"`
	MimeType   string    `json:"mimeType"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// SaveTranscode inserts or updates a job record.
func (d *Database) SaveTranscode(ctx context.Context, r TranscodeRecord) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("save_transcode", start, err) }()

	var finished int64
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.Unix()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO transcodes (job_id, video_id, state, reason, input_size, output_size, bitrate, mime_type, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			state = excluded.state,
			reason = excluded.reason,
			output_size = excluded.output_size,
			bitrate = excluded.bitrate,
			mime_type = excluded.mime_type,
			finished_at = excluded.finished_at
	`, r.JobID, r.VideoID, r.State, r.Reason, r.InputSize, r.OutputSize, r.Bitrate, r.MimeType,
		r.StartedAt.Unix(), finished)
	return err
}

// GetTranscode returns a job record by id.
func (d *Database) GetTranscode(ctx context.Context, jobID string) (TranscodeRecord, error) {
	records, err := d.queryTranscodes(ctx, "get_transcode", "WHERE job_id = ?", jobID)
	if err != nil {
		return TranscodeRecord{}, err
	}
	if len(records) == 0 {
		return TranscodeRecord{}, ErrNotFound
	}
	return records[0], nil
}

// TranscodesForVideo returns a video's job records, newest first.
func (d *Database) TranscodesForVideo(ctx context.Context, videoID string) ([]TranscodeRecord, error) {
	return d.queryTranscodes(ctx, "transcodes_for_video", "WHERE video_id = ?", videoID)
}

func (d *Database) queryTranscodes(ctx context.Context, op, where string, args ...any) ([]TranscodeRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(op, start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT job_id, video_id, state, reason, input_size, output_size, bitrate, mime_type, started_at, finished_at
		FROM transcodes `+where+`
		ORDER BY started_at DESC, job_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []TranscodeRecord{}
	for rows.Next() {
		var r TranscodeRecord
		var started, finished int64
		if err = rows.Scan(&r.JobID, &r.VideoID, &r.State, &r.Reason, &r.InputSize, &r.OutputSize,
			&r.Bitrate, &r.MimeType, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		if finished > 0 {
			r.FinishedAt = time.Unix(finished, 0).UTC()
		}
		records = append(records, r)
	}
	err = rows.Err()
	return records, err
}
