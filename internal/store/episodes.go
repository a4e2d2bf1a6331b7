package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/migraineai/voicelog/internal/extract"
)

const episodeColumns = `id, user_id, audio_clip_id, start_time, end_time, intensity, pain_location, aura,
	symptoms, triggers, what_you_tried, notes, transcript_text, extraction_confidences, created_at, updated_at`

// CreateEpisode inserts an episode. Absent payload fields stay NULL.
// When clipID names a clip that already has an episode, the payload is
// merged into that episode instead.
func (s *SQLiteStore) CreateEpisode(ctx context.Context, userID int64, clipID string, p extract.Payload, transcript string) (*Episode, error) {
	if clipID != "" {
		existing, err := s.episodeByClip(ctx, clipID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			return s.MergeEpisode(ctx, existing.ID, p)
		}
	}

	now := s.now()
	cols, err := episodeArgs(p)
	if err != nil {
		return nil, err
	}
	args := append([]any{userID, nullString(clipID)}, cols...)
	args = append(args, nullString(transcript), formatTime(now), formatTime(now))

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (user_id, audio_clip_id, start_time, end_time, intensity, pain_location, aura,
			symptoms, triggers, what_you_tried, notes, extraction_confidences, transcript_text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting episode: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting last insert id: %w", err)
	}
	return s.GetEpisode(ctx, id)
}

// MergeEpisode overlays the present fields of p onto the stored episode.
// Absent fields keep their stored value; confidences merge per key.
func (s *SQLiteStore) MergeEpisode(ctx context.Context, id int64, p extract.Payload) (*Episode, error) {
	ep, err := s.GetEpisode(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := ep.Payload.Merge(p)

	cols, err := episodeArgs(merged)
	if err != nil {
		return nil, err
	}
	args := append(cols, formatTime(s.now()), id)

	_, err = s.db.ExecContext(ctx,
		`UPDATE episodes SET start_time = ?, end_time = ?, intensity = ?, pain_location = ?, aura = ?,
			symptoms = ?, triggers = ?, what_you_tried = ?, notes = ?, extraction_confidences = ?, updated_at = ?
		 WHERE id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("updating episode %d: %w", id, err)
	}
	return s.GetEpisode(ctx, id)
}

// GetEpisode retrieves an episode by ID.
func (s *SQLiteStore) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	ep, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("episode %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting episode %d: %w", id, err)
	}
	return ep, nil
}

func (s *SQLiteStore) episodeByClip(ctx context.Context, clipID string) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE audio_clip_id = ?`, clipID)
	ep, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting episode for clip %s: %w", clipID, err)
	}
	return ep, nil
}

// ListEpisodes returns episodes newest first.
func (s *SQLiteStore) ListEpisodes(ctx context.Context, opts ListOpts) ([]*Episode, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	query := `SELECT ` + episodeColumns + ` FROM episodes`
	args := []any{}
	if opts.UserID != 0 {
		query += " WHERE user_id = ?"
		args = append(args, opts.UserID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning episode: %w", err)
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// DeleteEpisode removes an episode.
func (s *SQLiteStore) DeleteEpisode(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM episodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting episode %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("episode %d: %w", id, ErrNotFound)
	}
	return nil
}

// episodeArgs returns the payload columns in the order
// start_time, end_time, intensity, pain_location, aura, symptoms, triggers,
// what_you_tried, notes, extraction_confidences.
func episodeArgs(p extract.Payload) ([]any, error) {
	var intensity, aura any
	if p.Intensity != nil {
		intensity = *p.Intensity
	}
	if p.Aura != nil {
		aura = 0
		if *p.Aura {
			aura = 1
		}
	}
	symptoms, err := marshalList(p.Symptoms)
	if err != nil {
		return nil, fmt.Errorf("encoding symptoms: %w", err)
	}
	triggers, err := marshalList(p.Triggers)
	if err != nil {
		return nil, fmt.Errorf("encoding triggers: %w", err)
	}
	var conf any
	if len(p.Confidence) > 0 {
		b, err := json.Marshal(p.Confidence)
		if err != nil {
			return nil, fmt.Errorf("encoding confidences: %w", err)
		}
		conf = string(b)
	}
	return []any{
		nullTime(p.StartTime), nullTime(p.EndTime), intensity, nullString(p.PainLocation), aura,
		symptoms, triggers, nullString(p.WhatYouTried), nullString(p.Notes), conf,
	}, nil
}

func marshalList(items []string) (any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row scanner) (*Episode, error) {
	var (
		ep                             Episode
		clipID, start, end, loc        sql.NullString
		symptoms, triggers, tried      sql.NullString
		notes, transcript, confidences sql.NullString
		intensity, aura                sql.NullInt64
		createdAt, updatedAt           string
	)
	err := row.Scan(&ep.ID, &ep.UserID, &clipID, &start, &end, &intensity, &loc, &aura,
		&symptoms, &triggers, &tried, &notes, &transcript, &confidences, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	ep.AudioClipID = clipID.String
	ep.TranscriptText = transcript.String
	ep.CreatedAt = parseTime(createdAt)
	ep.UpdatedAt = parseTime(updatedAt)

	p := &ep.Payload
	p.StartTime = scanTime(start)
	p.EndTime = scanTime(end)
	if intensity.Valid {
		v := int(intensity.Int64)
		p.Intensity = &v
	}
	p.PainLocation = loc.String
	if aura.Valid {
		v := aura.Int64 != 0
		p.Aura = &v
	}
	p.Symptoms = unmarshalList(symptoms)
	p.Triggers = unmarshalList(triggers)
	p.WhatYouTried = tried.String
	p.Notes = notes.String
	if confidences.Valid && confidences.String != "" {
		var m map[string]float64
		if json.Unmarshal([]byte(confidences.String), &m) == nil && len(m) > 0 {
			p.Confidence = m
		}
	}
	return &ep, nil
}

func unmarshalList(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(ns.String), &items); err != nil || len(items) == 0 {
		return nil
	}
	return items
}
