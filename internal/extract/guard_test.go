package extract

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardCheck(t *testing.T) {
	g := NewGuard(nil)
	tests := []struct {
		name       string
		transcript string
		rejected   bool
	}{
		{"plain english", "I have a throbbing pain in my left temple", false},
		{"started is not TED", "It started this morning around 7am", false},
		{"blank", "", true},
		{"whitespace", "   \n\t", true},
		{"broadcast artifact", "MBC News, reporting live", true},
		{"artifact any case", "thanks for WATCHING", true},
		{"caption credit", "Subtitles by the Amara.org community", true},
		{"acronym whole word", "TED talk about headaches", true},
		{"prompt echo", "I am a transcription system.", true},
		{"devanagari", "सिरदर्द हो रहा है", true},
		{"cyrillic", "у меня болит голова", true},
		{"arabic", "عندي صداع", true},
		{"hangul", "머리가 아파요", true},
		{"cjk", "我头疼", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(tt.transcript)
			if tt.rejected {
				assert.True(t, errors.Is(err, ErrRejected), "expected rejection, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGuardSanitizeLogsRejection(t *testing.T) {
	var buf bytes.Buffer
	g := NewGuard(slog.New(slog.NewTextHandler(&buf, nil)))

	got, ok := g.Sanitize("Thank you for watching")
	assert.False(t, ok)
	assert.Empty(t, got)
	assert.Contains(t, buf.String(), "rejected transcript")
	assert.Contains(t, buf.String(), "Thank you for watching")

	buf.Reset()
	got, ok = g.Sanitize("pain behind my eyes")
	assert.True(t, ok)
	assert.Equal(t, "pain behind my eyes", got)
	assert.Empty(t, buf.String())
}

func TestGuardSanitizeBlankIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	g := NewGuard(slog.New(slog.NewTextHandler(&buf, nil)))
	_, ok := g.Sanitize("  ")
	assert.False(t, ok)
	assert.Empty(t, buf.String())
}
