package extract

import (
	"math"
	"strings"

	"github.com/migraineai/voicelog/internal/temporal"
	"github.com/migraineai/voicelog/internal/vocab"
)

// Confidence floors for fields filled by the heuristics. A floor raises an
// existing confidence, never lowers it.
const (
	StartExplicitFloor = 0.9
	StartVagueFloor    = 0.85
	IntensityFloor     = 0.85
	SymptomsFloor      = 0.8
	TriggersFloor      = 0.75

	// DirectLocationConfidence is assigned to a pain location taken from a
	// phrase in the transcript. It sits below the default confirmation
	// threshold so the location is always confirmed with the user.
	DirectLocationConfidence = 0.6
)

// Mapper canonicalizes an AnalysisResult and fills gaps from the transcript.
// Explicit analysis values always win over heuristic ones.
type Mapper struct {
	resolver *temporal.Resolver
	guard    *Guard
}

// NewMapper creates a Mapper. A nil resolver uses the wall clock in the
// default reference timezone; a nil guard uses NewGuard(nil).
func NewMapper(resolver *temporal.Resolver, guard *Guard) *Mapper {
	if resolver == nil {
		resolver = temporal.NewResolver()
	}
	if guard == nil {
		guard = NewGuard(nil)
	}
	return &Mapper{resolver: resolver, guard: guard}
}

// Resolver returns the temporal resolver used for timestamps.
func (m *Mapper) Resolver() *temporal.Resolver { return m.resolver }

// Map produces the sparse payload. It never fails: values that cannot be
// parsed or validated are dropped. An empty transcript, or one the guard
// rejects, disables the heuristic fallback.
func (m *Mapper) Map(a AnalysisResult, transcript string) Payload {
	p := m.canonicalize(a)

	if strings.TrimSpace(transcript) != "" && m.guard.Check(transcript) == nil {
		m.fill(&p, transcript)
	}

	if p.Aura == nil {
		for _, s := range p.Symptoms {
			if strings.Contains(strings.ToLower(s), "aura") {
				v := true
				p.Aura = &v
				break
			}
		}
	}
	if len(p.Confidence) == 0 {
		p.Confidence = nil
	}
	return p
}

func (m *Mapper) canonicalize(a AnalysisResult) Payload {
	var p Payload
	if t, ok := m.resolver.ParseTimestamp(a.StartTime); ok {
		p.StartTime = &t
	}
	if t, ok := m.resolver.ParseTimestamp(a.EndTime); ok {
		p.EndTime = &t
	}
	p.Intensity = canonicalIntensity(a.Intensity)
	p.PainLocation = strings.TrimSpace(a.PainLocation)
	if a.Aura != nil {
		v := *a.Aura
		p.Aura = &v
	}
	p.Symptoms = vocab.MapSymptoms(a.Symptoms)
	p.Triggers = canonicalTriggers(a.Triggers)
	p.WhatYouTried = strings.TrimSpace(a.WhatYouTried)
	p.Notes = strings.TrimSpace(a.Notes)

	for k, v := range a.Confidence {
		if !isField(k) || math.IsNaN(v) {
			continue
		}
		if p.Confidence == nil {
			p.Confidence = make(map[string]float64, len(a.Confidence))
		}
		p.Confidence[k] = clamp01(v)
	}
	return p
}

// fill runs the heuristics for fields the analysis left empty.
func (m *Mapper) fill(p *Payload, transcript string) {
	local := ExtractLocally(transcript)

	if p.StartTime == nil {
		if match, ok := m.resolver.Resolve(transcript); ok {
			t := match.Time
			p.StartTime = &t
			floor := StartVagueFloor
			if match.Explicit {
				floor = StartExplicitFloor
			}
			p.raiseConfidence(FieldStartTime, floor)
		}
	}
	if p.Intensity == nil && local.Intensity != nil {
		v := *local.Intensity
		p.Intensity = &v
		p.raiseConfidence(FieldIntensity, IntensityFloor)
	}
	// Inferred locations ("other", remaps) are never used. Only a phrase
	// the speaker said fills the field, and it stays provisional.
	if p.PainLocation == "" && local.LocationDirect && local.Location != "" {
		p.PainLocation = local.Location
		p.setConfidence(FieldPainLocation, DirectLocationConfidence)
	}
	if len(p.Symptoms) == 0 && len(local.Symptoms) > 0 {
		p.Symptoms = append([]string(nil), local.Symptoms...)
		p.raiseConfidence(FieldSymptoms, SymptomsFloor)
	}
	if len(p.Triggers) == 0 && len(local.Triggers) > 0 {
		p.Triggers = append([]string(nil), local.Triggers...)
		p.raiseConfidence(FieldTriggers, TriggersFloor)
	}
	if p.Aura == nil && local.Aura != nil {
		v := *local.Aura
		p.Aura = &v
	}
}

func (p *Payload) raiseConfidence(field string, floor float64) {
	p.setConfidence(field, math.Max(p.Confidence[field], floor))
}

func (p *Payload) setConfidence(field string, v float64) {
	if p.Confidence == nil {
		p.Confidence = map[string]float64{}
	}
	p.Confidence[field] = v
}

func canonicalIntensity(v *float64) *int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	r := math.Round(*v)
	if r < 0 || r > 10 {
		return nil
	}
	n := int(r)
	return &n
}

// canonicalTriggers drops timing phrases and pseudo-triggers, then maps the
// rest onto the trigger vocabulary.
func canonicalTriggers(items []string) []string {
	var kept []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || vocab.LooksLikeTimeReference(item) || vocab.IsPseudoTrigger(item) {
			continue
		}
		kept = append(kept, item)
	}
	return vocab.MapTriggers(kept)
}
