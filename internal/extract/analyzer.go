package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/migraineai/voicelog/internal/llm"
	"github.com/migraineai/voicelog/internal/temporal"
	"github.com/migraineai/voicelog/internal/vocab"
)

// DefaultCacheTTL is how long an analysis is reused for an identical
// transcript.
const DefaultCacheTTL = 120 * time.Second

// ErrNoProvider is returned by Analyze when no LLM provider is configured.
var ErrNoProvider = errors.New("no LLM provider configured")

// Analyzer obtains an AnalysisResult from an LLM. Results are cached per
// transcript.
type Analyzer struct {
	provider llm.Provider
	guard    *Guard
	resolver *temporal.Resolver
	cache    *cache.Cache
	ttl      time.Duration
	logger   *slog.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithCacheTTL sets the result cache TTL. Zero or negative disables caching.
func WithCacheTTL(ttl time.Duration) AnalyzerOption {
	return func(a *Analyzer) { a.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithGuard replaces the transcript guard.
func WithGuard(g *Guard) AnalyzerOption {
	return func(a *Analyzer) {
		if g != nil {
			a.guard = g
		}
	}
}

// WithResolver sets the clock and reference timezone used in prompts and
// start-time fallbacks.
func WithResolver(r *temporal.Resolver) AnalyzerOption {
	return func(a *Analyzer) {
		if r != nil {
			a.resolver = r
		}
	}
}

// NewAnalyzer creates an Analyzer backed by provider.
func NewAnalyzer(provider llm.Provider, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		provider: provider,
		resolver: temporal.NewResolver(),
		ttl:      DefaultCacheTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.guard == nil {
		a.guard = NewGuard(a.logger)
	}
	if a.ttl > 0 {
		a.cache = cache.New(a.ttl, 2*a.ttl)
	}
	return a
}

// Provider returns the backing provider name, or "" without one.
func (a *Analyzer) Provider() string {
	if a.provider == nil {
		return ""
	}
	return a.provider.Name()
}

// Analyze returns the LLM analysis of a transcript. A transcript the guard
// rejects yields an empty analysis and no error. Transport failures and
// non-JSON replies are returned as errors; callers fall back to heuristics.
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (AnalysisResult, error) {
	clean, ok := a.guard.Sanitize(transcript)
	if !ok {
		return AnalysisResult{}, nil
	}
	key := cacheKey(clean)
	if a.cache != nil {
		if v, found := a.cache.Get(key); found {
			return v.(AnalysisResult).clone(), nil
		}
	}
	if a.provider == nil {
		return AnalysisResult{}, ErrNoProvider
	}

	now := a.resolver.Now()
	raw, err := a.provider.Complete(ctx, buildAnalyzerPrompt(clean, now), llm.CompletionOpts{
		Temperature: 0,
		Format:      "json",
		System:      analyzerSystemPrompt,
	})
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("analyze transcript: %w", err)
	}
	result, err := parseAnalysis(raw)
	if err != nil {
		return AnalysisResult{}, err
	}

	a.fallbackStart(&result, clean)
	pruneTriggers(&result)

	if a.cache != nil {
		a.cache.Set(key, result.clone(), cache.DefaultExpiration)
	}
	a.logger.Debug("analyzed transcript", "provider", a.provider.Name(), "fields", len(result.present()))
	return result, nil
}

func cacheKey(transcript string) string {
	sum := sha256.Sum256([]byte(transcript))
	return "extract:" + hex.EncodeToString(sum[:])
}

func parseAnalysis(raw string) (AnalysisResult, error) {
	cleaned := llm.StripCodeFence(raw)
	if cleaned == "" {
		return AnalysisResult{}, errors.New("analyze transcript: empty response")
	}
	var result AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return AnalysisResult{}, fmt.Errorf("analyze transcript: invalid JSON from LLM: %w\nraw response: %s", err, llm.Truncate(raw, 300))
	}
	return result, nil
}

var (
	morningOrWokeRe  = regexp.MustCompile(`this morning|woke up`)
	spokenRelativeRe = regexp.MustCompile(`(?:\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+(?:minutes?|mins?|hours?|hrs?|legal)\s+(?:ago|before)`)
	immediateOnsetRe = regexp.MustCompile(`right now|just now`)
)

// fallbackStart fills a start time the LLM missed for the most common
// phrasings. Relative offsets get the "relative" placeholder; the mapper
// drops it and the temporal resolver computes the real time.
func (a *Analyzer) fallbackStart(r *AnalysisResult, transcript string) {
	if strings.TrimSpace(r.StartTime) != "" {
		return
	}
	t := strings.ToLower(transcript)
	switch {
	case morningOrWokeRe.MatchString(t):
		r.StartTime = a.resolver.Today().Add(8 * time.Hour).Format(time.RFC3339)
	case spokenRelativeRe.MatchString(t):
		r.StartTime = "relative"
	case immediateOnsetRe.MatchString(t) || strings.TrimSpace(t) == "now":
		r.StartTime = a.resolver.Now().Format(time.RFC3339)
	}
}

// pruneTriggers removes pseudo-triggers. When none survive the trigger
// confidence goes too.
func pruneTriggers(r *AnalysisResult) {
	if len(r.Triggers) == 0 {
		return
	}
	seen := map[string]bool{}
	var kept []string
	for _, t := range r.Triggers {
		n := strings.ToLower(strings.TrimSpace(t))
		if n == "" || vocab.IsPseudoTrigger(n) || seen[n] {
			continue
		}
		seen[n] = true
		kept = append(kept, n)
	}
	r.Triggers = kept
	if len(kept) == 0 {
		r.Triggers = nil
		delete(r.Confidence, FieldTriggers)
	}
}

func (a AnalysisResult) clone() AnalysisResult {
	out := a
	out.Symptoms = append([]string(nil), a.Symptoms...)
	out.Triggers = append([]string(nil), a.Triggers...)
	if len(out.Symptoms) == 0 {
		out.Symptoms = nil
	}
	if len(out.Triggers) == 0 {
		out.Triggers = nil
	}
	if a.Intensity != nil {
		v := *a.Intensity
		out.Intensity = &v
	}
	if a.Aura != nil {
		v := *a.Aura
		out.Aura = &v
	}
	if a.Confidence != nil {
		out.Confidence = make(map[string]float64, len(a.Confidence))
		for k, v := range a.Confidence {
			out.Confidence[k] = v
		}
	}
	return out
}

// present lists the fields the analysis carries.
func (a AnalysisResult) present() []string {
	var out []string
	check := map[string]bool{
		FieldStartTime:    a.StartTime != "",
		FieldEndTime:      a.EndTime != "",
		FieldIntensity:    a.Intensity != nil,
		FieldPainLocation: a.PainLocation != "",
		FieldAura:         a.Aura != nil,
		FieldSymptoms:     len(a.Symptoms) > 0,
		FieldTriggers:     len(a.Triggers) > 0,
		FieldWhatYouTried: a.WhatYouTried != "",
		FieldNotes:        a.Notes != "",
	}
	for _, f := range Fields {
		if check[f] {
			out = append(out, f)
		}
	}
	return out
}
