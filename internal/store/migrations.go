package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// migrate creates all tables if they don't exist and applies schema
// evolutions. Every step is idempotent.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	// Seed metadata (the meta table exists after bootstrap)
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Schema evolution: duplicate-upload detection
	if err := s.migrateClipHashColumn(); err != nil {
		return fmt.Errorf("migrating content_hash column: %w", err)
	}

	if err := s.migrateListIndexes(); err != nil {
		return fmt.Errorf("migrating list indexes: %w", err)
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS audio_clips (
			id                 TEXT PRIMARY KEY,
			user_id            INTEGER NOT NULL,
			storage_path       TEXT NOT NULL DEFAULT '',
			duration_sec       REAL,
			codec              TEXT,
			sample_rate        INTEGER,
			status             TEXT NOT NULL DEFAULT 'uploaded',
			transcript_text    TEXT,
			asr_provider       TEXT,
			asr_confidence     REAL,
			structured_payload TEXT,
			analysis_error     TEXT,
			processed_at       TEXT,
			created_at         TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS episodes (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id                INTEGER NOT NULL,
			audio_clip_id          TEXT REFERENCES audio_clips(id) ON DELETE SET NULL,
			start_time             TEXT,
			end_time               TEXT,
			intensity              INTEGER,
			pain_location          TEXT,
			aura                   INTEGER,
			symptoms               TEXT,
			triggers               TEXT,
			what_you_tried         TEXT,
			notes                  TEXT,
			transcript_text        TEXT,
			extraction_confidences TEXT,
			created_at             TEXT NOT NULL,
			updated_at             TEXT NOT NULL
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_episodes_clip ON episodes(audio_clip_id)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning bootstrap transaction: %w", err)
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration: %w\nSQL: %s", err, stmt)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bootstrap: %w", err)
	}
	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": "1",
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

// migrateClipHashColumn adds content_hash to audio_clips if it doesn't exist.
func (s *SQLiteStore) migrateClipHashColumn() error {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('audio_clips') WHERE name='content_hash'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking content_hash column: %w", err)
	}
	if count > 0 {
		return nil
	}

	if _, err := s.db.Exec(`ALTER TABLE audio_clips ADD COLUMN content_hash TEXT`); err != nil && !isDuplicateColumnError(err) {
		return fmt.Errorf("adding content_hash column: %w", err)
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_clips_user_hash ON audio_clips(user_id, content_hash)`); err != nil {
		return fmt.Errorf("creating content_hash index: %w", err)
	}
	return nil
}

// migrateListIndexes adds the indexes behind newest-first episode listing.
func (s *SQLiteStore) migrateListIndexes() error {
	done, err := s.isMetaFlagEnabled("list_indexes_v1")
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_episodes_user_created ON episodes(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_clips_status ON audio_clips(status)`,
	}
	for _, ddl := range indexes {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("creating list index: %w", err)
		}
	}

	return s.setMetaFlag("list_indexes_v1")
}
