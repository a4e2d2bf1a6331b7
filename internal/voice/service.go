// Package voice orchestrates a voice-logging session: guard, LLM analysis,
// mapping, dialogue and persistence.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/migraineai/voicelog/internal/asr"
	"github.com/migraineai/voicelog/internal/dialogue"
	"github.com/migraineai/voicelog/internal/extract"
	"github.com/migraineai/voicelog/internal/store"
	"github.com/migraineai/voicelog/internal/temporal"
)

// ErrNoTranscriber is returned by clip operations when no ASR backend is
// configured.
var ErrNoTranscriber = errors.New("no transcriber configured")

// DefaultClipAttempts is how often a retryable transcription failure is
// attempted before the clip is marked failed.
const DefaultClipAttempts = 3

// Config wires a Service. Analyzer, Transcriber and Store may be nil: without
// an analyzer the service runs heuristics only.
type Config struct {
	Analyzer    *extract.Analyzer
	Mapper      *extract.Mapper
	Assistant   *dialogue.Assistant
	Transcriber asr.Transcriber
	Store       store.Store
	Logger      *slog.Logger

	// ClipDir receives uploaded audio. Empty keeps audio in memory only.
	ClipDir      string
	ClipAttempts int
	RetryBackoff time.Duration
}

// Service runs extraction turns and clip jobs. Safe for concurrent use when
// its collaborators are.
type Service struct {
	guard        *extract.Guard
	analyzer     *extract.Analyzer
	mapper       *extract.Mapper
	assistant    *dialogue.Assistant
	transcriber  asr.Transcriber
	store        store.Store
	logger       *slog.Logger
	clipDir      string
	attempts     int
	retryBackoff time.Duration
}

// New creates a Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	guard := extract.NewGuard(logger)
	mapper := cfg.Mapper
	if mapper == nil {
		mapper = extract.NewMapper(temporal.NewResolver(), guard)
	}
	assistant := cfg.Assistant
	if assistant == nil {
		assistant = dialogue.NewAssistant(nil, dialogue.DefaultThreshold, logger)
	}
	attempts := cfg.ClipAttempts
	if attempts <= 0 {
		attempts = DefaultClipAttempts
	}
	backoff := cfg.RetryBackoff
	if backoff < 0 {
		backoff = 0
	}
	return &Service{
		guard:        guard,
		analyzer:     cfg.Analyzer,
		mapper:       mapper,
		assistant:    assistant,
		transcriber:  cfg.Transcriber,
		store:        cfg.Store,
		logger:       logger,
		clipDir:      cfg.ClipDir,
		attempts:     attempts,
		retryBackoff: backoff,
	}
}

// Store returns the backing store, or nil.
func (s *Service) Store() store.Store { return s.store }

// Now returns the current time in the reference timezone.
func (s *Service) Now() time.Time { return s.mapper.Resolver().Now() }

// Canonicalize maps client-supplied episode fields without scanning any
// transcript: timestamps are parsed, vocabularies mapped and invalid values
// dropped.
func (s *Service) Canonicalize(a extract.AnalysisResult) extract.Payload {
	return s.mapper.Map(a, "")
}

// Result is one extraction.
type Result struct {
	Payload  extract.Payload  `json:"payload"`
	Context  dialogue.Context `json:"context"`
	Rejected bool             `json:"rejected,omitempty"`
}

// TurnResult is one dialogue turn.
type TurnResult struct {
	Payload  extract.Payload  `json:"payload"`
	Context  dialogue.Context `json:"context"`
	Turn     dialogue.Turn    `json:"turn"`
	Rejected bool             `json:"rejected,omitempty"`
}

// Extract analyzes a transcript and maps it to a payload. LLM failures
// degrade to heuristics; only context cancellation is returned as an error.
// A blank transcript is an empty turn, not a rejection.
func (s *Service) Extract(ctx context.Context, transcript string) (Result, error) {
	if strings.TrimSpace(transcript) == "" {
		return Result{Context: dialogue.BuildContext(extract.Payload{}, s.assistant.Threshold())}, nil
	}
	clean, ok := s.guard.Sanitize(transcript)
	if !ok {
		return Result{Context: dialogue.BuildContext(extract.Payload{}, s.assistant.Threshold()), Rejected: true}, nil
	}

	a, err := s.analyze(ctx, clean)
	if err != nil {
		return Result{}, err
	}
	p := s.mapper.Map(a, clean)
	return Result{Payload: p, Context: dialogue.BuildContext(p, s.assistant.Threshold())}, nil
}

func (s *Service) analyze(ctx context.Context, transcript string) (extract.AnalysisResult, error) {
	if s.analyzer == nil {
		return extract.AnalysisResult{}, nil
	}
	a, err := s.analyzer.Analyze(ctx, transcript)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return extract.AnalysisResult{}, ctxErr
		}
		s.logger.Warn("analysis failed, using heuristics only", "provider", s.analyzer.Provider(), "error", err)
		return extract.AnalysisResult{}, nil
	}
	return a, nil
}

// Turn extracts from the latest utterance, merges it over prior, applies the
// ask-once defaults for askedField and asks the assistant for the next
// question.
func (s *Service) Turn(ctx context.Context, transcript string, prior *extract.Payload, askedField string) (TurnResult, error) {
	res, err := s.Extract(ctx, transcript)
	if err != nil {
		return TurnResult{}, err
	}

	merged := res.Payload
	if prior != nil {
		merged = prior.Merge(res.Payload)
	}
	if askedField = strings.TrimSpace(askedField); askedField != "" && !res.Rejected {
		merged = dialogue.ApplyAskOnceDefaults(merged, askedField, s.Now())
	}

	turn := s.assistant.Next(ctx, transcript, merged)
	return TurnResult{
		Payload:  merged,
		Context:  dialogue.BuildContext(merged, s.assistant.Threshold()),
		Turn:     turn,
		Rejected: res.Rejected,
	}, nil
}

// Save creates an episode when episodeID is 0 and merges into it otherwise.
func (s *Service) Save(ctx context.Context, userID, episodeID int64, p extract.Payload, transcript string) (*store.Episode, error) {
	if s.store == nil {
		return nil, errors.New("no store configured")
	}
	if episodeID == 0 {
		ep, err := s.store.CreateEpisode(ctx, userID, "", p, transcript)
		if err != nil {
			return nil, fmt.Errorf("save episode: %w", err)
		}
		return ep, nil
	}
	ep, err := s.store.MergeEpisode(ctx, episodeID, p)
	if err != nil {
		return nil, fmt.Errorf("save episode: %w", err)
	}
	return ep, nil
}

// SaveClip stores the episode for a processed clip. Fields in p win over the
// clip's structured payload; notes fall back to the clip transcript.
func (s *Service) SaveClip(ctx context.Context, userID int64, clipID string, p extract.Payload) (*store.Episode, error) {
	if s.store == nil {
		return nil, errors.New("no store configured")
	}
	clip, err := s.store.GetClip(ctx, clipID)
	if err != nil {
		return nil, fmt.Errorf("save clip episode: %w", err)
	}
	var base extract.Payload
	if clip.StructuredPayload != nil {
		base = *clip.StructuredPayload
	}
	merged := base.Merge(p)
	if merged.Notes == "" {
		merged.Notes = clip.TranscriptText
	}
	ep, err := s.store.CreateEpisode(ctx, userID, clip.ID, merged, clip.TranscriptText)
	if err != nil {
		return nil, fmt.Errorf("save clip episode: %w", err)
	}
	return ep, nil
}
