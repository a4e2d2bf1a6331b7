package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapSymptoms(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"synonyms collapse", []string{"nauseous", "Nausea", "queasy"}, []string{"Nausea"}},
		{"case and whitespace", []string{"  Sensitivity To Light ", "PHONOPHOBIA"}, []string{"Photophobia", "Phonophobia"}},
		{"unknown passes through", []string{"jaw clenching", "blurry"}, []string{"jaw clenching", "Blurred_Vision"}},
		{"order of first occurrence", []string{"dizzy", "aura", "dizziness"}, []string{"Dizziness", "Aura"}},
		{"empties dropped", []string{"", "   "}, nil},
		{"nil input", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapSymptoms(tt.in))
		})
	}
}

func TestMapTriggers(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"stress family", []string{"stress", "anxiety"}, []string{"Emotional_Stress"}},
		{"period", []string{"period"}, []string{"Menstruation"}},
		{"unknown becomes other", []string{"my boss", "loud music"}, []string{OtherTrigger}},
		{"weather variants", []string{"weather", "rain", "heat"}, []string{"Weather_Change", "Weather_Barometric", "Weather"}},
		{"empty result is nil", []string{" "}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapTriggers(tt.in))
		})
	}
}

func TestMappingIsIdempotent(t *testing.T) {
	triggers := MapTriggers([]string{"coffee", "heat", "weather", "jet lag", "something else"})
	assert.Equal(t, triggers, MapTriggers(triggers))

	symptoms := MapSymptoms([]string{"throwing up", "tunnel vision", "pins and needles", "ear pressure"})
	assert.Equal(t, symptoms, MapSymptoms(symptoms))
}

func TestLooksLikeTimeReference(t *testing.T) {
	timeLike := []string{"5 mins ago", "2 hours", "just now", "before today", "ago since yesterday", "after that", ""}
	for _, s := range timeLike {
		assert.True(t, LooksLikeTimeReference(s), s)
	}
	causes := []string{"stress", "red wine", "skipped lunch", "last glass of wine"}
	for _, s := range causes {
		assert.False(t, LooksLikeTimeReference(s), s)
	}
}

func TestIsPseudoTrigger(t *testing.T) {
	assert.True(t, IsPseudoTrigger("Attack"))
	assert.True(t, IsPseudoTrigger(" last night "))
	assert.False(t, IsPseudoTrigger("stress"))
}
