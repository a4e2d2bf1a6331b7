// Package extract turns a voice transcript into a structured migraine
// episode payload.
//
// The pipeline has four layers:
//   - Guard rejects hallucinated or non-English transcripts.
//   - Analyzer asks an LLM for a structured AnalysisResult.
//   - ExtractLocally runs deterministic keyword heuristics.
//   - Mapper canonicalizes the analysis and fills its gaps from the
//     heuristics, producing a sparse Payload.
//
// Guard, ExtractLocally and Mapper perform no I/O and are safe for
// concurrent use.
package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Field names shared by AnalysisResult, Payload and the confidence breakdown.
const (
	FieldStartTime    = "start_time"
	FieldEndTime      = "end_time"
	FieldIntensity    = "intensity"
	FieldPainLocation = "pain_location"
	FieldAura         = "aura"
	FieldSymptoms     = "symptoms"
	FieldTriggers     = "triggers"
	FieldWhatYouTried = "what_you_tried"
	FieldNotes        = "notes"
)

// Fields lists every recognized field in payload order.
var Fields = []string{
	FieldStartTime, FieldEndTime, FieldIntensity, FieldPainLocation, FieldAura,
	FieldSymptoms, FieldTriggers, FieldWhatYouTried, FieldNotes,
}

func isField(name string) bool {
	for _, f := range Fields {
		if f == name {
			return true
		}
	}
	return false
}

// AnalysisResult is the structured analysis returned by the LLM. Every field
// is optional; zero values mean absent. Values are type-checked on decode but
// not yet canonicalized.
type AnalysisResult struct {
	StartTime    string
	EndTime      string
	Intensity    *float64
	PainLocation string
	Aura         *bool
	Symptoms     []string
	Triggers     []string
	WhatYouTried string
	Notes        string
	Confidence   map[string]float64
}

// IsEmpty reports whether the analysis carries no field at all.
func (a AnalysisResult) IsEmpty() bool {
	return a.StartTime == "" && a.EndTime == "" && a.Intensity == nil &&
		a.PainLocation == "" && a.Aura == nil && len(a.Symptoms) == 0 &&
		len(a.Triggers) == 0 && a.WhatYouTried == "" && a.Notes == "" &&
		len(a.Confidence) == 0
}

// UnmarshalJSON decodes an LLM response leniently. Unknown keys are ignored
// and values of the wrong type are treated as absent.
func (a *AnalysisResult) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = AnalysisResult{
		StartTime:    stringValue(raw[FieldStartTime]),
		EndTime:      stringValue(raw[FieldEndTime]),
		Intensity:    numberValue(raw[FieldIntensity]),
		PainLocation: stringValue(raw[FieldPainLocation]),
		Aura:         auraValue(raw[FieldAura]),
		Symptoms:     stringList(raw[FieldSymptoms]),
		Triggers:     stringList(raw[FieldTriggers]),
		WhatYouTried: stringValue(raw[FieldWhatYouTried]),
		Notes:        stringValue(raw[FieldNotes]),
		Confidence:   confidenceMap(raw["confidence_breakdown"]),
	}
	return nil
}

// MarshalJSON renders the analysis in the same shape the LLM returns.
func (a AnalysisResult) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	putString(out, FieldStartTime, a.StartTime)
	putString(out, FieldEndTime, a.EndTime)
	if a.Intensity != nil {
		out[FieldIntensity] = *a.Intensity
	}
	putString(out, FieldPainLocation, a.PainLocation)
	if a.Aura != nil {
		out[FieldAura] = *a.Aura
	}
	if len(a.Symptoms) > 0 {
		out[FieldSymptoms] = a.Symptoms
	}
	if len(a.Triggers) > 0 {
		out[FieldTriggers] = a.Triggers
	}
	putString(out, FieldWhatYouTried, a.WhatYouTried)
	putString(out, FieldNotes, a.Notes)
	if len(a.Confidence) > 0 {
		out["confidence_breakdown"] = a.Confidence
	}
	return json.Marshal(out)
}

func putString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func stringValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// numberValue accepts JSON numbers and numeric strings.
func numberValue(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		f, err := cast.ToFloat64E(strings.TrimSpace(n))
		if err != nil || strings.TrimSpace(n) == "" {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func auraValue(v any) *bool {
	switch b := v.(type) {
	case bool:
		return &b
	case string:
		return ParseAura(b)
	default:
		return nil
	}
}

// ParseAura normalizes spoken or textual aura answers. Unrecognized input
// returns nil.
func ParseAura(s string) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "present":
		v = true
	case "no", "n", "false", "absent":
		v = false
	default:
		return nil
	}
	return &v
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func confidenceMap(v any) map[string]float64 {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, raw := range m {
		if !isField(k) || raw == nil {
			continue
		}
		if _, isBool := raw.(bool); isBool {
			continue
		}
		f, err := cast.ToFloat64E(raw)
		if err != nil || math.IsNaN(f) {
			continue
		}
		out[k] = clamp01(f)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

// Payload is the canonical, sparse episode record produced by the Mapper.
// A field is set only when it carries a non-empty value.
type Payload struct {
	StartTime    *time.Time         `json:"start_time,omitempty"`
	EndTime      *time.Time         `json:"end_time,omitempty"`
	Intensity    *int               `json:"intensity,omitempty"`
	PainLocation string             `json:"pain_location,omitempty"`
	Aura         *bool              `json:"aura,omitempty"`
	Symptoms     []string           `json:"symptoms,omitempty"`
	Triggers     []string           `json:"triggers,omitempty"`
	WhatYouTried string             `json:"what_you_tried,omitempty"`
	Notes        string             `json:"notes,omitempty"`
	Confidence   map[string]float64 `json:"confidence_breakdown,omitempty"`
}

// Has reports whether the named field is present.
func (p Payload) Has(field string) bool {
	switch field {
	case FieldStartTime:
		return p.StartTime != nil
	case FieldEndTime:
		return p.EndTime != nil
	case FieldIntensity:
		return p.Intensity != nil
	case FieldPainLocation:
		return p.PainLocation != ""
	case FieldAura:
		return p.Aura != nil
	case FieldSymptoms:
		return len(p.Symptoms) > 0
	case FieldTriggers:
		return len(p.Triggers) > 0
	case FieldWhatYouTried:
		return p.WhatYouTried != ""
	case FieldNotes:
		return p.Notes != ""
	}
	return false
}

// IsEmpty reports whether no field is present.
func (p Payload) IsEmpty() bool {
	for _, f := range Fields {
		if p.Has(f) {
			return false
		}
	}
	return true
}

// Format renders a present field for prompts and summaries: lists are
// comma-joined, booleans are yes/no and times are RFC 3339.
func (p Payload) Format(field string) string {
	switch field {
	case FieldStartTime:
		if p.StartTime != nil {
			return p.StartTime.Format(time.RFC3339)
		}
	case FieldEndTime:
		if p.EndTime != nil {
			return p.EndTime.Format(time.RFC3339)
		}
	case FieldIntensity:
		if p.Intensity != nil {
			return fmt.Sprintf("%d", *p.Intensity)
		}
	case FieldPainLocation:
		return p.PainLocation
	case FieldAura:
		if p.Aura != nil {
			if *p.Aura {
				return "yes"
			}
			return "no"
		}
	case FieldSymptoms:
		return strings.Join(p.Symptoms, ", ")
	case FieldTriggers:
		return strings.Join(p.Triggers, ", ")
	case FieldWhatYouTried:
		return p.WhatYouTried
	case FieldNotes:
		return p.Notes
	}
	return ""
}

// ConfidenceFor returns the recorded confidence for a field.
func (p Payload) ConfidenceFor(field string) (float64, bool) {
	c, ok := p.Confidence[field]
	return c, ok
}

// Merge overlays the present fields of next onto p. Confidence entries from
// next replace those of p key by key.
func (p Payload) Merge(next Payload) Payload {
	out := p.clone()
	if next.StartTime != nil {
		out.StartTime = next.StartTime
	}
	if next.EndTime != nil {
		out.EndTime = next.EndTime
	}
	if next.Intensity != nil {
		out.Intensity = next.Intensity
	}
	if next.PainLocation != "" {
		out.PainLocation = next.PainLocation
	}
	if next.Aura != nil {
		out.Aura = next.Aura
	}
	if len(next.Symptoms) > 0 {
		out.Symptoms = append([]string(nil), next.Symptoms...)
	}
	if len(next.Triggers) > 0 {
		out.Triggers = append([]string(nil), next.Triggers...)
	}
	if next.WhatYouTried != "" {
		out.WhatYouTried = next.WhatYouTried
	}
	if next.Notes != "" {
		out.Notes = next.Notes
	}
	for k, v := range next.Confidence {
		if out.Confidence == nil {
			out.Confidence = map[string]float64{}
		}
		out.Confidence[k] = v
	}
	return out
}

func (p Payload) clone() Payload {
	out := p
	out.Symptoms = append([]string(nil), p.Symptoms...)
	out.Triggers = append([]string(nil), p.Triggers...)
	if len(out.Symptoms) == 0 {
		out.Symptoms = nil
	}
	if len(out.Triggers) == 0 {
		out.Triggers = nil
	}
	if p.Confidence != nil {
		out.Confidence = make(map[string]float64, len(p.Confidence))
		for k, v := range p.Confidence {
			out.Confidence[k] = v
		}
	}
	return out
}

// AsAnalysis re-expresses a payload as an analysis, so a stored payload can
// be fed back through the Mapper.
func (p Payload) AsAnalysis() AnalysisResult {
	a := AnalysisResult{
		PainLocation: p.PainLocation,
		Aura:         p.Aura,
		Symptoms:     append([]string(nil), p.Symptoms...),
		Triggers:     append([]string(nil), p.Triggers...),
		WhatYouTried: p.WhatYouTried,
		Notes:        p.Notes,
	}
	if p.StartTime != nil {
		a.StartTime = p.StartTime.Format(time.RFC3339Nano)
	}
	if p.EndTime != nil {
		a.EndTime = p.EndTime.Format(time.RFC3339Nano)
	}
	if p.Intensity != nil {
		f := float64(*p.Intensity)
		a.Intensity = &f
	}
	if len(p.Confidence) > 0 {
		a.Confidence = make(map[string]float64, len(p.Confidence))
		for k, v := range p.Confidence {
			a.Confidence[k] = v
		}
	}
	if len(a.Symptoms) == 0 {
		a.Symptoms = nil
	}
	if len(a.Triggers) == 0 {
		a.Triggers = nil
	}
	return a
}
