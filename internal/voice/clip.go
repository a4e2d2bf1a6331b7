package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/migraineai/voicelog/internal/asr"
	"github.com/migraineai/voicelog/internal/extract"
	"github.com/migraineai/voicelog/internal/store"
)

// IngestClip records an upload and runs the clip job on it. A repeated
// upload of an already transcribed recording returns the earlier clip.
func (s *Service) IngestClip(ctx context.Context, userID int64, audio []byte, format string) (*store.Clip, error) {
	if s.store == nil {
		return nil, errors.New("no store configured")
	}
	if len(audio) == 0 {
		return nil, asr.ErrEmptyAudio
	}
	format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	if format == "" {
		format = "m4a"
	}

	hash := store.HashAudio(audio)
	if prev, err := s.store.FindClipByHash(ctx, userID, hash); err == nil && prev.Status == store.ClipTranscribed {
		s.logger.Info("duplicate clip upload", "clip", prev.ID, "user", userID)
		return prev, nil
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	clip := &store.Clip{ID: uuid.NewString(), UserID: userID, Codec: format, ContentHash: hash}
	if s.clipDir != "" {
		if err := os.MkdirAll(s.clipDir, 0755); err != nil {
			return nil, fmt.Errorf("creating clip directory: %w", err)
		}
		clip.StoragePath = filepath.Join(s.clipDir, clip.ID+"."+format)
		if err := os.WriteFile(clip.StoragePath, audio, 0644); err != nil {
			return nil, fmt.Errorf("writing clip: %w", err)
		}
	}
	if err := s.store.CreateClip(ctx, clip); err != nil {
		return nil, err
	}
	return s.ProcessClip(ctx, clip.ID, audio, format)
}

// ProcessClip runs the clip job: transcribe, analyze, then map the analysis
// without the transcript. Any failure marks the clip failed with the reason
// and is returned.
func (s *Service) ProcessClip(ctx context.Context, clipID string, audio []byte, format string) (*store.Clip, error) {
	if s.store == nil {
		return nil, errors.New("no store configured")
	}
	if err := s.store.UpdateClipStatus(ctx, clipID, store.ClipProcessing); err != nil {
		return nil, err
	}

	result, err := s.processClip(ctx, audio, format)
	if err != nil {
		s.logger.Error("clip processing failed", "clip", clipID, "error", err)
		if ferr := s.store.FailClip(context.WithoutCancel(ctx), clipID, err.Error()); ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		return nil, err
	}

	if err := s.store.CompleteClip(ctx, clipID, result); err != nil {
		return nil, err
	}
	s.logger.Info("clip transcribed", "clip", clipID, "provider", result.Provider, "chars", len(result.Transcript))
	return s.store.GetClip(ctx, clipID)
}

func (s *Service) processClip(ctx context.Context, audio []byte, format string) (store.ClipResult, error) {
	if s.transcriber == nil {
		return store.ClipResult{}, ErrNoTranscriber
	}
	tr, err := s.transcribe(ctx, audio, format)
	if err != nil {
		return store.ClipResult{}, fmt.Errorf("transcribe clip: %w", err)
	}

	var a extract.AnalysisResult
	if s.analyzer != nil {
		a, err = s.analyzer.Analyze(ctx, tr.Text)
		if err != nil {
			return store.ClipResult{}, fmt.Errorf("analyze clip: %w", err)
		}
	}

	return store.ClipResult{
		Transcript: tr.Text,
		Provider:   tr.Provider,
		Confidence: tr.Confidence,
		Payload:    s.mapper.Map(a, ""),
	}, nil
}

func (s *Service) transcribe(ctx context.Context, audio []byte, format string) (asr.Result, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		res, err := s.transcriber.Transcribe(ctx, audio, format)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !asr.IsRetryable(err) || attempt == s.attempts {
			break
		}
		s.logger.Warn("transcription failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return asr.Result{}, ctx.Err()
		case <-time.After(s.retryBackoff * time.Duration(attempt)):
		}
	}
	return asr.Result{}, lastErr
}
