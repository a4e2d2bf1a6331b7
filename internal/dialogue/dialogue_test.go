package dialogue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/migraineai/voicelog/internal/extract"
)

func intPtr(i int) *int { return &i }

func TestBuildContext(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)
	p := extract.Payload{
		StartTime:    &start,
		Intensity:    intPtr(7),
		PainLocation: "left temple",
		Confidence:   map[string]float64{"start_time": 0.9, "pain_location": 0.6},
	}

	c := BuildContext(p, 0)
	assert.Equal(t, []string{"start_time", "intensity", "pain_location"}, c.Collected)
	assert.Equal(t, []string{"triggers", "symptoms"}, c.Missing)
	assert.Equal(t, []Provisional{{Field: "pain_location", Value: "left temple", Confidence: 0.6}}, c.Provisional)
	assert.True(t, c.FollowupRequired())
}

func TestBuildContextThreshold(t *testing.T) {
	p := extract.Payload{
		Intensity:  intPtr(4),
		Confidence: map[string]float64{"intensity": 0.85},
	}
	assert.Empty(t, BuildContext(p, DefaultThreshold).Provisional)
	assert.Len(t, BuildContext(p, 0.9).Provisional, 1)

	// Without a confidence entry a field counts as confirmed.
	assert.Empty(t, BuildContext(extract.Payload{Intensity: intPtr(4)}, 0.99).Provisional)
}

func TestBuildContextEmptyPayload(t *testing.T) {
	c := BuildContext(extract.Payload{}, 0)
	assert.Empty(t, c.Collected)
	assert.Equal(t, RequiredFields, c.Missing)
	assert.NotNil(t, c.Provisional)
}

func TestRenderContext(t *testing.T) {
	p := extract.Payload{
		Intensity:    intPtr(7),
		PainLocation: "left temple",
		Notes:        "started after lunch",
		Confidence:   map[string]float64{"pain_location": 0.6},
	}
	got := RenderContext(BuildContext(p, 0), p)
	want := "Collected so far:\n- pain intensity: 7\n- pain location: left temple\n\n" +
		"Still missing:\n- start time\n- triggers\n- symptoms\n\n" +
		"Provisional (needs confirmation):\n- pain location: left temple (confidence 0.60)\n\n" +
		"Notes:\n- started after lunch"
	assert.Equal(t, want, got)
}

func TestRenderContextPlaceholders(t *testing.T) {
	got := RenderContext(BuildContext(extract.Payload{}, 0), extract.Payload{})
	assert.Contains(t, got, "Collected so far:\n- None yet")
	assert.Contains(t, got, "Provisional (needs confirmation):\n- None")
	assert.NotContains(t, got, "Notes:")

	start := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)
	full := extract.Payload{
		StartTime:    &start,
		Intensity:    intPtr(5),
		PainLocation: "forehead",
		Symptoms:     []string{"Nausea"},
		Triggers:     []string{"Stress"},
	}
	assert.Contains(t, RenderContext(BuildContext(full, 0), full), "Still missing:\n- None – ready to save")
}

func TestFallbackTurn(t *testing.T) {
	tests := []struct {
		missing []string
		want    Turn
	}{
		{nil, Turn{AssistantResponse: "Thank you. I have all the information I need."}},
		{[]string{"start_time", "symptoms"}, Turn{AssistantResponse: "When did this migraine start?", IsFollowupRequired: true, NextQuestionField: "start_time"}},
		{[]string{"triggers"}, Turn{AssistantResponse: "What do you think triggered this migraine?", IsFollowupRequired: true, NextQuestionField: "triggers"}},
		{[]string{"intensity"}, Turn{AssistantResponse: "On a scale of 1 to 10, how intense is the pain?", IsFollowupRequired: true, NextQuestionField: "intensity"}},
		{[]string{"pain_location"}, Turn{AssistantResponse: "Where exactly do you feel the pain?", IsFollowupRequired: true, NextQuestionField: "pain_location"}},
		{[]string{"symptoms"}, Turn{AssistantResponse: "What other symptoms are you experiencing?", IsFollowupRequired: true, NextQuestionField: "symptoms"}},
		{[]string{"aura"}, Turn{AssistantResponse: "Can you tell me more about your migraine?", IsFollowupRequired: true, NextQuestionField: "aura"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FallbackTurn(tt.missing), "missing=%v", tt.missing)
	}
}

func TestApplyAskOnceDefaults(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	p := ApplyAskOnceDefaults(extract.Payload{}, "start_time", now)
	if assert.NotNil(t, p.StartTime) {
		assert.True(t, p.StartTime.Equal(now))
	}
	assert.Equal(t, []string{"other"}, ApplyAskOnceDefaults(extract.Payload{}, "triggers", now).Triggers)
	assert.Equal(t, []string{"other"}, ApplyAskOnceDefaults(extract.Payload{}, "symptoms", now).Symptoms)

	// Intensity and location are asked again rather than defaulted.
	assert.True(t, ApplyAskOnceDefaults(extract.Payload{}, "intensity", now).IsEmpty())
	assert.True(t, ApplyAskOnceDefaults(extract.Payload{}, "pain_location", now).IsEmpty())

	// A detected answer is never overwritten.
	got := ApplyAskOnceDefaults(extract.Payload{Triggers: []string{"Stress"}}, "triggers", now)
	assert.Equal(t, []string{"Stress"}, got.Triggers)
}
