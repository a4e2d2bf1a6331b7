// Package dialogue tracks which required episode fields are still missing
// or unconfirmed and produces the next follow-up question.
package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/migraineai/voicelog/internal/extract"
)

// DefaultThreshold is the confidence below which a collected field is
// provisional and must be confirmed.
const DefaultThreshold = 0.7

// RequiredFields are asked for in this order.
var RequiredFields = []string{
	extract.FieldStartTime,
	extract.FieldTriggers,
	extract.FieldIntensity,
	extract.FieldPainLocation,
	extract.FieldSymptoms,
}

var fieldLabels = map[string]string{
	extract.FieldStartTime:    "start time",
	extract.FieldTriggers:     "triggers",
	extract.FieldPainLocation: "pain location",
	extract.FieldIntensity:    "pain intensity",
	extract.FieldSymptoms:     "symptoms",
}

var fieldQuestions = map[string]string{
	extract.FieldStartTime:    "When did this migraine start?",
	extract.FieldTriggers:     "What do you think triggered this migraine?",
	extract.FieldIntensity:    "On a scale of 1 to 10, how intense is the pain?",
	extract.FieldPainLocation: "Where exactly do you feel the pain?",
	extract.FieldSymptoms:     "What other symptoms are you experiencing?",
}

const (
	genericQuestion = "Can you tell me more about your migraine?"
	doneMessage     = "Thank you. I have all the information I need."
)

// Label returns the human label for a field.
func Label(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return field
}

// Provisional is a collected field whose confidence is below the threshold.
type Provisional struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Context is the conversation state derived from a payload. It is rebuilt on
// every turn and never stored.
type Context struct {
	Collected   []string      `json:"collected"`
	Missing     []string      `json:"missing"`
	Provisional []Provisional `json:"provisional"`
}

// FollowupRequired reports whether any required field is still missing.
func (c Context) FollowupRequired() bool { return len(c.Missing) > 0 }

// BuildContext splits the required fields into collected and missing and
// flags collected fields with a confidence below threshold. A field without
// a confidence entry counts as confirmed. A non-positive threshold means
// DefaultThreshold.
func BuildContext(p extract.Payload, threshold float64) Context {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	c := Context{Collected: []string{}, Missing: []string{}, Provisional: []Provisional{}}
	for _, f := range RequiredFields {
		if !p.Has(f) {
			c.Missing = append(c.Missing, f)
			continue
		}
		c.Collected = append(c.Collected, f)
		if conf, ok := p.ConfidenceFor(f); ok && conf < threshold {
			c.Provisional = append(c.Provisional, Provisional{Field: f, Value: p.Format(f), Confidence: conf})
		}
	}
	return c
}

// RenderContext formats the context for the dialogue prompt.
func RenderContext(c Context, p extract.Payload) string {
	var collected []string
	for _, f := range c.Collected {
		if v := p.Format(f); v != "" {
			collected = append(collected, fmt.Sprintf("%s: %s", Label(f), v))
		}
	}
	if len(collected) == 0 {
		collected = []string{"None yet"}
	}

	missing := []string{"None – ready to save"}
	if len(c.Missing) > 0 {
		missing = missing[:0]
		for _, f := range c.Missing {
			missing = append(missing, Label(f))
		}
	}

	provisional := []string{"None"}
	if len(c.Provisional) > 0 {
		provisional = provisional[:0]
		for _, pv := range c.Provisional {
			provisional = append(provisional, fmt.Sprintf("%s: %s (confidence %.2f)", Label(pv.Field), pv.Value, pv.Confidence))
		}
	}

	var b strings.Builder
	b.WriteString("Collected so far:\n- ")
	b.WriteString(strings.Join(collected, "\n- "))
	b.WriteString("\n\nStill missing:\n- ")
	b.WriteString(strings.Join(missing, "\n- "))
	b.WriteString("\n\nProvisional (needs confirmation):\n- ")
	b.WriteString(strings.Join(provisional, "\n- "))
	if p.Notes != "" {
		b.WriteString("\n\nNotes:\n- ")
		b.WriteString(p.Notes)
	}
	return b.String()
}

// Turn is the assistant's reply for one dialogue turn.
type Turn struct {
	AssistantResponse  string        `json:"assistant_response"`
	IsFollowupRequired bool          `json:"is_followup_required"`
	NextQuestionField  string        `json:"next_question_field,omitempty"`
	Provisional        []Provisional `json:"provisional_fields,omitempty"`
}

// FallbackTurn asks the fixed question for the first missing field, or
// closes the conversation when nothing is missing.
func FallbackTurn(missing []string) Turn {
	if len(missing) == 0 {
		return Turn{AssistantResponse: doneMessage}
	}
	next := missing[0]
	q, ok := fieldQuestions[next]
	if !ok {
		q = genericQuestion
	}
	return Turn{AssistantResponse: q, IsFollowupRequired: true, NextQuestionField: next}
}

// ApplyAskOnceDefaults fills a field the user was just asked about when the
// answer yielded nothing: start time becomes now, triggers and symptoms
// become "other". Other fields are asked again.
func ApplyAskOnceDefaults(p extract.Payload, askedField string, now time.Time) extract.Payload {
	if p.Has(askedField) {
		return p
	}
	switch askedField {
	case extract.FieldStartTime:
		t := now
		p.StartTime = &t
	case extract.FieldTriggers:
		p.Triggers = []string{"other"}
	case extract.FieldSymptoms:
		p.Symptoms = []string{"other"}
	}
	return p
}
