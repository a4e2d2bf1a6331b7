// Package vocab maps free-text symptom and trigger phrases onto the closed
// tag vocabulary stored with an episode.
//
// The tables are plain data. Lookups are case-insensitive on the phrase and
// exact on canonical tags, so mapping an already-mapped list is a no-op.
package vocab

import (
	"regexp"
	"strings"
)

// OtherTrigger is the catch-all tag for triggers outside the vocabulary.
const OtherTrigger = "other"

// symptomTags maps lowercased symptom phrases to canonical symptom tags.
var symptomTags = map[string]string{
	"nausea":    "Nausea",
	"nauseous":  "Nausea",
	"feel sick": "Nausea",
	"queasy":    "Nausea",

	"vomiting":    "Vomiting",
	"puking":      "Vomiting",
	"throwing up": "Vomiting",
	"throw up":    "Vomiting",

	"aura":          "Aura",
	"visuals":       "Visual",
	"visual":        "Visual",
	"zigzag":        "Visual",
	"spots":         "Visual",
	"flashes":       "Photopsia",
	"stars":         "Photopsia",
	"blurriness":    "Blurred_Vision",
	"blurry":        "Blurred_Vision",
	"blind spot":    "Scotoma",
	"tunnel vision": "Tunnel_Vision",

	"light sensitivity":    "Photophobia",
	"sensitivity to light": "Photophobia",
	"sensitive to light":   "Photophobia",
	"photophobia":          "Photophobia",

	"sound sensitivity":    "Phonophobia",
	"noise sensitivity":    "Phonophobia",
	"sensitivity to sound": "Phonophobia",
	"sensitive to sound":   "Phonophobia",
	"phonophobia":          "Phonophobia",

	"smell sensitivity":    "Osmophobia",
	"sensitivity to smell": "Osmophobia",
	"sensitive to smell":   "Osmophobia",
	"osmophobia":           "Osmophobia",

	"dizziness": "Dizziness",
	"dizzy":     "Dizziness",
	"vertigo":   "Vertigo",

	"brain fog":   "Cognitive_Dysfunction",
	"confusion":   "Cognitive_Dysfunction",
	"cognitive":   "Cognitive_Dysfunction",
	"dysfunction": "Cognitive_Dysfunction",

	"fatigue":    "Fatigue",
	"exhaustion": "Fatigue",
	"weakness":   "Weakness",
	"weak":       "Weakness",

	"numbness":         "Paresthesia",
	"tingling":         "Paresthesia",
	"pins and needles": "Paresthesia",

	"stiff neck":    "Neck_Stiffness",
	"neck is stiff": "Neck_Stiffness",
	"yawning":       "Yawning",
	"chills":        "Chills",
	"sweating":      "Diaphoresis",
	"pale":          "Pallor",
	"speech":        "Dysphasia",
	"slurring":      "Dysphasia",
	"ringing":       "Tinnitus",
	"tinnitus":      "Tinnitus",
}

// triggerTags maps lowercased trigger phrases to canonical trigger tags.
var triggerTags = map[string]string{
	"stress":  "Emotional_Stress",
	"anxiety": "Emotional_Stress",
	"crying":  "Emotional_Stress",
	"tension": "Emotional_Stress",

	"sleep":              "Sleep_Issue",
	"insomnia":           "Sleep_Deprivation",
	"oversleeping":       "Oversleeping",
	"napping":            "Irregular_Sleep",
	"sleep deprivation":  "Sleep_Deprivation",
	"lack of sleep":      "Sleep_Deprivation",
	"slept poorly":       "Sleep_Issue",
	"haven't slept well": "Sleep_Issue",
	"poor sleep":         "Sleep_Issue",

	"hunger":         "Hunger",
	"fasting":        "Hunger",
	"skipped meal":   "Hunger",
	"skipped a meal": "Hunger",
	"dehydration":    "Dehydration",
	"thirst":         "Dehydration",

	"food":      "Dietary",
	"chocolate": "Dietary_Chocolate",
	"cheese":    "Dietary_Tyramine",
	"sugar":     "Dietary_Sugar",
	"caffeine":  "Caffeine",
	"coffee":    "Caffeine",
	"tea":       "Caffeine",

	"alcohol":        "Alcohol",
	"hangover":       "Alcohol",
	"hangover style": "Alcohol",
	"wine":           "Alcohol_Wine",
	"beer":           "Alcohol_Beer",

	"weather":  "Weather_Change",
	"rain":     "Weather_Barometric",
	"storm":    "Weather_Barometric",
	"pressure": "Weather_Barometric",
	"heat":     "Weather",
	"humidity": "Weather_Humidity",
	"sun":      "Weather_Sun",

	"glare":        "Light_Glare",
	"bright light": "Light_Bright",
	"loud noise":   "Phonophobia",
	"photophobia":  "Photophobia",
	"phonophobia":  "Phonophobia",

	"screen":   "Screen_Exposure",
	"computer": "Screen_Exposure",
	"phone":    "Screen_Exposure",

	"smells":  "Olfactory_Trigger",
	"perfume": "Olfactory_Perfume",
	"smoke":   "Olfactory_Smoke",

	"hormones":     "Hormonal",
	"period":       "Menstruation",
	"menstruation": "Menstruation",
	"cycle":        "Menstruation",
	"ovulation":    "Hormonal_Ovulation",

	"exercise": "Physical_Exertion",
	"gym":      "Physical_Exertion",
	"travel":   "Travel",
	"jet lag":  "Circadian_Disruption",

	"other": OtherTrigger,
}

// pseudoTriggers name the attack itself or a time of day rather than a cause.
var pseudoTriggers = map[string]bool{
	"attack":     true,
	"migraine":   true,
	"headache":   true,
	"pain":       true,
	"head":       true,
	"last night": true,
	"yesterday":  true,
	"today":      true,
	"morning":    true,
	"evening":    true,
	"night":      true,
	"afternoon":  true,
	"time":       true,
	"started":    true,
	"began":      true,
}

var (
	symptomCanon = canonicalSet(symptomTags)
	triggerCanon = canonicalSet(triggerTags)
)

func canonicalSet(table map[string]string) map[string]bool {
	out := make(map[string]bool, len(table))
	for _, tag := range table {
		out[tag] = true
	}
	return out
}

// SymptomTag returns the canonical tag for a symptom phrase.
func SymptomTag(phrase string) (string, bool) {
	return lookup(symptomTags, symptomCanon, phrase)
}

// TriggerTag returns the canonical tag for a trigger phrase.
func TriggerTag(phrase string) (string, bool) {
	return lookup(triggerTags, triggerCanon, phrase)
}

func lookup(table map[string]string, canon map[string]bool, phrase string) (string, bool) {
	trimmed := strings.TrimSpace(phrase)
	if canon[trimmed] {
		return trimmed, true
	}
	tag, ok := table[strings.ToLower(trimmed)]
	return tag, ok
}

// MapSymptoms canonicalizes symptom phrases. Unknown symptoms are kept as
// given (trimmed). Returns nil when nothing survives.
func MapSymptoms(items []string) []string {
	return mapItems(items, func(item string) string {
		if tag, ok := SymptomTag(item); ok {
			return tag
		}
		return item
	})
}

// MapTriggers canonicalizes trigger phrases. Unknown triggers collapse to
// OtherTrigger. Returns nil when nothing survives.
func MapTriggers(items []string) []string {
	return mapItems(items, func(item string) string {
		if tag, ok := TriggerTag(item); ok {
			return tag
		}
		return OtherTrigger
	})
}

func mapItems(items []string, fn func(string) string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		mapped := strings.TrimSpace(fn(item))
		if mapped == "" || seen[mapped] {
			continue
		}
		seen[mapped] = true
		out = append(out, mapped)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// IsPseudoTrigger reports whether a trigger entry describes the attack or a
// time of day instead of a cause.
func IsPseudoTrigger(item string) bool {
	return pseudoTriggers[strings.ToLower(strings.TrimSpace(item))]
}

var (
	digitRe        = regexp.MustCompile(`\d`)
	durationUnitRe = regexp.MustCompile(`\b(?:second|seconds|sec|secs|minute|minutes|min|mins|hour|hours|hr|hrs)\b`)
	recentPhraseRe = regexp.MustCompile(`\b(?:just now|moments ago|a few minutes|minutes ago|hours ago|before (?:now|today)|after (?:some time|that))\b`)
	agoBeforeRe    = regexp.MustCompile(`\b(?:ago|before)\b`)
	dayWordRe      = regexp.MustCompile(`\b(?:today|yesterday|this|last)\b`)
)

// LooksLikeTimeReference reports whether a trigger entry is really a timing
// phrase ("5 mins ago", "before today") rather than a cause.
func LooksLikeTimeReference(item string) bool {
	s := strings.ToLower(strings.TrimSpace(item))
	if s == "" {
		return true
	}
	if digitRe.MatchString(s) && durationUnitRe.MatchString(s) {
		return true
	}
	if recentPhraseRe.MatchString(s) {
		return true
	}
	return agoBeforeRe.MatchString(s) && dayWordRe.MatchString(s)
}
