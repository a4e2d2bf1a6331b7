// Package store provides the SQLite storage layer for voicelog.
//
// All data lives in a single SQLite database file:
// - episodes: one row per logged migraine, fields nullable until known
// - audio_clips: uploaded recordings and their processing state
// - meta: schema flags for idempotent migrations
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/migraineai/voicelog/internal/extract"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.voicelog/voicelog.db"

// DefaultListLimit caps list queries without an explicit limit.
const DefaultListLimit = 50

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Episode is a stored migraine episode. Payload holds the nullable episode
// fields and their extraction confidences.
type Episode struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	AudioClipID    string          `json:"audio_clip_id,omitempty"`
	Payload        extract.Payload `json:"payload"`
	TranscriptText string          `json:"transcript_text,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ClipStatus is the processing state of an audio clip.
type ClipStatus string

const (
	ClipUploaded    ClipStatus = "uploaded"
	ClipProcessing  ClipStatus = "processing"
	ClipTranscribed ClipStatus = "transcribed"
	ClipFailed      ClipStatus = "failed"
)

// Clip is an uploaded voice recording.
type Clip struct {
	ID                string           `json:"id"`
	UserID            int64            `json:"user_id"`
	StoragePath       string           `json:"storage_path"`
	ContentHash       string           `json:"content_hash,omitempty"`
	DurationSec       *float64         `json:"duration_sec,omitempty"`
	Codec             string           `json:"codec,omitempty"`
	SampleRate        *int             `json:"sample_rate,omitempty"`
	Status            ClipStatus       `json:"status"`
	TranscriptText    string           `json:"transcript_text,omitempty"`
	ASRProvider       string           `json:"asr_provider,omitempty"`
	ASRConfidence     *float64         `json:"asr_confidence,omitempty"`
	StructuredPayload *extract.Payload `json:"structured_payload,omitempty"`
	AnalysisError     string           `json:"analysis_error,omitempty"`
	ProcessedAt       *time.Time       `json:"processed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// ClipResult is the outcome of a successful clip job.
type ClipResult struct {
	Transcript string
	Provider   string
	Confidence *float64
	Payload    extract.Payload
}

// ListOpts controls pagination and filtering for ListEpisodes.
type ListOpts struct {
	UserID int64 // 0 lists every user
	Limit  int
	Offset int
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	EpisodeCount    int64 `json:"episodes"`
	ClipCount       int64 `json:"clips"`
	FailedClipCount int64 `json:"failed_clips"`
	DBSizeBytes     int64 `json:"db_size_bytes"`
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the storage interface.
type Store interface {
	// Episodes
	CreateEpisode(ctx context.Context, userID int64, clipID string, p extract.Payload, transcript string) (*Episode, error)
	MergeEpisode(ctx context.Context, id int64, p extract.Payload) (*Episode, error)
	GetEpisode(ctx context.Context, id int64) (*Episode, error)
	ListEpisodes(ctx context.Context, opts ListOpts) ([]*Episode, error)
	DeleteEpisode(ctx context.Context, id int64) error

	// Audio clips
	CreateClip(ctx context.Context, c *Clip) error
	GetClip(ctx context.Context, id string) (*Clip, error)
	FindClipByHash(ctx context.Context, userID int64, hash string) (*Clip, error)
	UpdateClipStatus(ctx context.Context, id string, status ClipStatus) error
	CompleteClip(ctx context.Context, id string, r ClipResult) error
	FailClip(ctx context.Context, id string, reason string) error

	// Observability
	Stats(ctx context.Context) (*StoreStats, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	cfg.DBPath = ExpandPath(cfg.DBPath)

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		dbPath: cfg.DBPath,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only, never auto-vacuum.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Stats returns row counts and the database size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM episodes", &stats.EpisodeCount},
		{"SELECT COUNT(*) FROM audio_clips", &stats.ClipCount},
		{"SELECT COUNT(*) FROM audio_clips WHERE status = 'failed'", &stats.FailedClipCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}

	// Only meaningful for file-based DBs.
	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}

	return stats, nil
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
