package extract

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migraineai/voicelog/internal/temporal"
)

var fixedNow = time.Date(2025, 3, 10, 14, 30, 45, 0, temporal.DefaultLocation())

func newTestMapper() *Mapper {
	resolver := temporal.NewResolver(temporal.WithNow(func() time.Time { return fixedNow }))
	return NewMapper(resolver, NewGuard(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 3, day, hour, minute, 0, 0, temporal.DefaultLocation())
}

const templeTranscript = "It's a 9 out of 10 pain in my left temple, triggered by stress, with nausea and light sensitivity"

func TestMapFillsGapsFromTranscript(t *testing.T) {
	p := newTestMapper().Map(AnalysisResult{}, templeTranscript)

	require.NotNil(t, p.Intensity)
	assert.Equal(t, 9, *p.Intensity)
	assert.Equal(t, "left temple", p.PainLocation)
	assert.Equal(t, []string{"Nausea", "Photophobia"}, p.Symptoms)
	assert.Equal(t, []string{"Emotional_Stress"}, p.Triggers)
	assert.Nil(t, p.StartTime)
	assert.Nil(t, p.Aura)
	assert.Equal(t, map[string]float64{
		FieldIntensity:    IntensityFloor,
		FieldPainLocation: DirectLocationConfidence,
		FieldSymptoms:     SymptomsFloor,
		FieldTriggers:     TriggersFloor,
	}, p.Confidence)
}

func TestMapStartTimeFromTranscript(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		want       time.Time
		confidence float64
	}{
		{"clock beats day-part", "This morning around 7am I got a migraine", at(10, 7, 0), StartExplicitFloor},
		{"woke up", "woke up with a splitting headache", at(10, 8, 0), StartVagueFloor},
		{"relative hours", "2 hours ago, triggered by weather, I started vomiting", fixedNow.Add(-2 * time.Hour), StartExplicitFloor},
		{"bare yesterday", "it started yesterday", at(9, 9, 0), StartVagueFloor},
	}
	m := newTestMapper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := m.Map(AnalysisResult{}, tt.transcript)
			require.NotNil(t, p.StartTime)
			assert.True(t, tt.want.Equal(*p.StartTime), "got %s, want %s", p.StartTime, tt.want)
			assert.Equal(t, temporal.DefaultTimezone, p.StartTime.Location().String())
			assert.Equal(t, tt.confidence, p.Confidence[FieldStartTime])
		})
	}
}

func TestMapWeatherAndVomiting(t *testing.T) {
	p := newTestMapper().Map(AnalysisResult{}, "2 hours ago, triggered by weather, I started vomiting")
	assert.Equal(t, []string{"Vomiting"}, p.Symptoms)
	assert.Equal(t, []string{"Weather_Change"}, p.Triggers)
	assert.Empty(t, p.PainLocation)
}

func TestMapExplicitValuesWin(t *testing.T) {
	a := AnalysisResult{
		StartTime:    "2025-03-10T06:00:00+05:30",
		Intensity:    floatPtr(4),
		PainLocation: "  occipital ",
		Confidence:   map[string]float64{FieldIntensity: 0.95},
	}
	p := newTestMapper().Map(a, templeTranscript)

	require.NotNil(t, p.Intensity)
	assert.Equal(t, 4, *p.Intensity)
	assert.Equal(t, 0.95, p.Confidence[FieldIntensity])
	assert.Equal(t, "occipital", p.PainLocation)
	_, hasLoc := p.Confidence[FieldPainLocation]
	assert.False(t, hasLoc)
	require.NotNil(t, p.StartTime)
	assert.True(t, at(10, 6, 0).Equal(*p.StartTime))
	_, hasStart := p.Confidence[FieldStartTime]
	assert.False(t, hasStart)
}

func TestMapFloorsNeverLowerConfidence(t *testing.T) {
	a := AnalysisResult{Confidence: map[string]float64{FieldSymptoms: 0.95, FieldTriggers: 0.2}}
	p := newTestMapper().Map(a, "feeling nauseous because of stress")
	assert.Equal(t, 0.95, p.Confidence[FieldSymptoms])
	assert.Equal(t, TriggersFloor, p.Confidence[FieldTriggers])
}

func TestMapRejectedTranscriptAddsNothing(t *testing.T) {
	m := newTestMapper()
	assert.True(t, m.Map(AnalysisResult{}, "MBC News: 9 out of 10 pain, nausea").IsEmpty())
	assert.True(t, m.Map(AnalysisResult{}, "सिरदर्द 9 out of 10").IsEmpty())
}

func TestMapNeverInfersPainLocation(t *testing.T) {
	m := newTestMapper()
	for _, transcript := range []string{
		"I have a bad headache",
		"my eye hurts",
		"aching at the base of the skull",
		"I left work early because of stress",
		"heavy eyes and yawning",
		"triggered by stress, both nausea and vomiting",
		"I was sitting in front of the computer all day and got a migraine",
		"on top of that I feel dizzy",
		"my face went pale and I feel weak",
	} {
		p := m.Map(AnalysisResult{}, transcript)
		assert.Empty(t, p.PainLocation, transcript)
		_, ok := p.Confidence[FieldPainLocation]
		assert.False(t, ok, transcript)
	}
}

func TestMapTriggers(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"pseudo-trigger pruned", []string{"attack", "stress"}, []string{"Emotional_Stress"}},
		{"time reference dropped", []string{"5 mins ago", "coffee"}, []string{"Caffeine"}},
		{"unknown becomes other", []string{"full moon", "Weather"}, []string{"other", "Weather"}},
		{"all pruned", []string{"migraine", "last night"}, nil},
	}
	m := newTestMapper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Map(AnalysisResult{Triggers: tt.in}, "").Triggers)
		})
	}
}

func TestMapCanonicalizesFields(t *testing.T) {
	m := newTestMapper()

	tests := []struct {
		name      string
		intensity *float64
		want      *int
	}{
		{"rounds", floatPtr(6.6), intPtr(7)},
		{"upper bound", floatPtr(10), intPtr(10)},
		{"too high", floatPtr(11), nil},
		{"negative", floatPtr(-1), nil},
	}
	for _, tt := range tests {
		t.Run("intensity "+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Map(AnalysisResult{Intensity: tt.intensity}, "").Intensity)
		})
	}

	for _, raw := range []string{"relative", "not a date", "  "} {
		assert.Nil(t, m.Map(AnalysisResult{StartTime: raw}, "").StartTime, raw)
	}

	naive := m.Map(AnalysisResult{StartTime: "2025-03-10T09:15:00"}, "").StartTime
	utc := m.Map(AnalysisResult{StartTime: "2025-03-10T03:45:00Z"}, "").StartTime
	require.NotNil(t, naive)
	require.NotNil(t, utc)
	assert.True(t, at(10, 9, 15).Equal(*naive))
	assert.True(t, naive.Equal(*utc))
	assert.Equal(t, temporal.DefaultTimezone, utc.Location().String())

	p := m.Map(AnalysisResult{Notes: "  ", WhatYouTried: " ibuprofen "}, "")
	assert.Empty(t, p.Notes)
	assert.Equal(t, "ibuprofen", p.WhatYouTried)
}

func TestMapAuraFromSymptoms(t *testing.T) {
	m := newTestMapper()

	p := m.Map(AnalysisResult{Symptoms: []string{"aura", " nausea ", "nausea"}}, "")
	assert.Equal(t, []string{"Aura", "Nausea"}, p.Symptoms)
	require.NotNil(t, p.Aura)
	assert.True(t, *p.Aura)

	p = m.Map(AnalysisResult{Aura: boolPtr(false), Symptoms: []string{"visual aura"}}, "")
	require.NotNil(t, p.Aura)
	assert.False(t, *p.Aura)
	assert.Equal(t, []string{"visual aura"}, p.Symptoms)
}

func TestMapSparseOutput(t *testing.T) {
	p := newTestMapper().Map(AnalysisResult{Symptoms: []string{"", " "}, Triggers: []string{}}, "")
	assert.True(t, p.IsEmpty())
	assert.Nil(t, p.Confidence)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestMapIsIdempotent(t *testing.T) {
	m := newTestMapper()
	inputs := []struct {
		analysis   AnalysisResult
		transcript string
	}{
		{AnalysisResult{}, templeTranscript},
		{AnalysisResult{}, "2 hours ago, triggered by weather, I started vomiting"},
		{AnalysisResult{
			StartTime:  "2025-03-10T09:15:00",
			EndTime:    "2025-03-10T11:00:00Z",
			Intensity:  floatPtr(7.2),
			Symptoms:   []string{"aura", "light sensitivity", "pins and needles"},
			Triggers:   []string{"red wine", "period", "attack"},
			Notes:      "took a nap",
			Confidence: map[string]float64{FieldIntensity: 0.9},
		}, ""},
	}
	for _, in := range inputs {
		first := m.Map(in.analysis, in.transcript)
		second := m.Map(first.AsAnalysis(), "")

		a, err := json.Marshal(first)
		require.NoError(t, err)
		b, err := json.Marshal(second)
		require.NoError(t, err)
		assert.JSONEq(t, string(a), string(b))
	}
}

func TestMapNeverPanics(t *testing.T) {
	m := newTestMapper()
	inputs := []AnalysisResult{
		{StartTime: "2025-13-45T99:99:99"},
		{Intensity: floatPtr(1e300)},
		{Confidence: map[string]float64{"bogus": 3, FieldIntensity: -2}},
		{Symptoms: []string{"\x00", "🙂"}, Triggers: []string{"\t"}},
	}
	for _, a := range inputs {
		assert.NotPanics(t, func() {
			p := m.Map(a, "¿?¡! 99/10 since , at :")
			for _, f := range Fields {
				if p.Has(f) {
					assert.NotEmpty(t, p.Format(f), f)
				}
			}
		})
	}
}
