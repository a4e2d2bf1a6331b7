package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/migraineai/voicelog/internal/extract"
)

const clipColumns = `id, user_id, storage_path, content_hash, duration_sec, codec, sample_rate, status,
	transcript_text, asr_provider, asr_confidence, structured_payload, analysis_error, processed_at, created_at`

// CreateClip inserts an uploaded clip. An empty ID gets a new UUID and an
// empty status becomes uploaded. ID, Status and CreatedAt are written back.
func (s *SQLiteStore) CreateClip(ctx context.Context, c *Clip) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = ClipUploaded
	}
	c.CreatedAt = s.now()

	var duration, rate any
	if c.DurationSec != nil {
		duration = *c.DurationSec
	}
	if c.SampleRate != nil {
		rate = *c.SampleRate
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audio_clips (id, user_id, storage_path, content_hash, duration_sec, codec, sample_rate, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.StoragePath, nullString(c.ContentHash), duration, nullString(c.Codec), rate,
		string(c.Status), formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting clip: %w", err)
	}
	return nil
}

// GetClip retrieves a clip by ID.
func (s *SQLiteStore) GetClip(ctx context.Context, id string) (*Clip, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clipColumns+` FROM audio_clips WHERE id = ?`, id)
	c, err := scanClip(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("clip %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting clip %s: %w", id, err)
	}
	return c, nil
}

// FindClipByHash returns the newest clip of a user with the given audio hash.
func (s *SQLiteStore) FindClipByHash(ctx context.Context, userID int64, hash string) (*Clip, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clipColumns+` FROM audio_clips WHERE user_id = ? AND content_hash = ?
		 ORDER BY created_at DESC LIMIT 1`, userID, hash)
	c, err := scanClip(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding clip by hash: %w", err)
	}
	return c, nil
}

// UpdateClipStatus sets the processing status of a clip.
func (s *SQLiteStore) UpdateClipStatus(ctx context.Context, id string, status ClipStatus) error {
	return s.updateClip(ctx, id, `UPDATE audio_clips SET status = ? WHERE id = ?`, string(status), id)
}

// CompleteClip stores the transcript and structured payload and marks the
// clip transcribed.
func (s *SQLiteStore) CompleteClip(ctx context.Context, id string, r ClipResult) error {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("encoding structured payload: %w", err)
	}
	var conf any
	if r.Confidence != nil {
		conf = *r.Confidence
	}
	return s.updateClip(ctx, id,
		`UPDATE audio_clips SET status = ?, transcript_text = ?, asr_provider = ?, asr_confidence = ?,
			structured_payload = ?, analysis_error = NULL, processed_at = ?
		 WHERE id = ?`,
		string(ClipTranscribed), r.Transcript, nullString(r.Provider), conf, string(payload), formatTime(s.now()), id,
	)
}

// FailClip marks a clip failed and records the reason.
func (s *SQLiteStore) FailClip(ctx context.Context, id string, reason string) error {
	return s.updateClip(ctx, id,
		`UPDATE audio_clips SET status = ?, analysis_error = ?, processed_at = ? WHERE id = ?`,
		string(ClipFailed), reason, formatTime(s.now()), id,
	)
}

func (s *SQLiteStore) updateClip(ctx context.Context, id string, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating clip %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("clip %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanClip(row scanner) (*Clip, error) {
	var (
		c                              Clip
		status, createdAt              string
		hash, codec, transcript        sql.NullString
		provider, payload, analysisErr sql.NullString
		processedAt                    sql.NullString
		duration, confidence           sql.NullFloat64
		rate                           sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.UserID, &c.StoragePath, &hash, &duration, &codec, &rate, &status,
		&transcript, &provider, &confidence, &payload, &analysisErr, &processedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	c.Status = ClipStatus(status)
	c.ContentHash = hash.String
	c.Codec = codec.String
	c.TranscriptText = transcript.String
	c.ASRProvider = provider.String
	c.AnalysisError = analysisErr.String
	c.ProcessedAt = scanTime(processedAt)
	c.CreatedAt = parseTime(createdAt)
	if duration.Valid {
		v := duration.Float64
		c.DurationSec = &v
	}
	if confidence.Valid {
		v := confidence.Float64
		c.ASRConfidence = &v
	}
	if rate.Valid {
		v := int(rate.Int64)
		c.SampleRate = &v
	}
	if payload.Valid && payload.String != "" {
		var p extract.Payload
		if err := json.Unmarshal([]byte(payload.String), &p); err == nil {
			c.StructuredPayload = &p
		}
	}
	return &c, nil
}
