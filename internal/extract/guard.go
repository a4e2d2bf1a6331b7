package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ErrRejected is returned by Guard.Check for transcripts that must not be
// analyzed.
var ErrRejected = errors.New("transcript rejected")

// hallucinationPhrases are known speech-to-text artifacts produced on silence
// or background media. Matched case-insensitively as substrings.
var hallucinationPhrases = []string{
	"MBC News",
	"MBC 뉴스",
	"Thank you for watching",
	"Thanks for watching",
	"subtitles",
	"captioned",
	"Amara.org",
	"I am a transcription system",
	"Only transcribe user speech",
}

// hallucinationAcronyms are matched as whole words, case-sensitively, since
// as substrings they occur in ordinary English ("started").
var hallucinationAcronyms = regexp.MustCompile(`\bTED\b`)

// foreignScriptRe covers Devanagari, Cyrillic, Arabic, CJK ideographs and
// Hangul syllables.
var foreignScriptRe = regexp.MustCompile(`[\x{0900}-\x{097F}\x{0400}-\x{04FF}\x{0600}-\x{06FF}\x{4E00}-\x{9FFF}\x{AC00}-\x{D7AF}]`)

// Guard screens transcripts before extraction.
type Guard struct {
	logger *slog.Logger
}

// NewGuard returns a Guard that logs rejections to logger (nil means
// slog.Default()).
func NewGuard(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{logger: logger}
}

// Check returns nil for an acceptable transcript and an error wrapping
// ErrRejected otherwise. It does not log.
func (g *Guard) Check(transcript string) error {
	if strings.TrimSpace(transcript) == "" {
		return fmt.Errorf("%w: blank", ErrRejected)
	}
	lower := strings.ToLower(transcript)
	for _, phrase := range hallucinationPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return fmt.Errorf("%w: hallucination %q", ErrRejected, phrase)
		}
	}
	if m := hallucinationAcronyms.FindString(transcript); m != "" {
		return fmt.Errorf("%w: hallucination %q", ErrRejected, m)
	}
	if foreignScriptRe.MatchString(transcript) {
		return fmt.Errorf("%w: non-English script", ErrRejected)
	}
	return nil
}

// Sanitize returns the transcript and true when it passes Check. Rejected
// transcripts are logged and discarded whole.
func (g *Guard) Sanitize(transcript string) (string, bool) {
	if err := g.Check(transcript); err != nil {
		if strings.TrimSpace(transcript) != "" {
			g.logger.Warn("rejected transcript", "reason", err.Error(), "transcript", transcript)
		}
		return "", false
	}
	return transcript, true
}
